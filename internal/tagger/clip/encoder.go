// Package clip runs the visual tower of a CLIP model exported to ONNX through
// OpenCV's DNN module.
package clip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"galleria/internal/tagger"
	"galleria/pkg/logger"
)

// device is one backend/target pair tried at startup. OpenCV switches an
// unavailable CUDA or OpenCL target to the CPU with only a log line, so a
// successful warm-up confirms nothing for those.
type device struct {
	name      string
	backend   gocv.NetBackendType
	target    gocv.NetTargetType
	confirmed bool
}

// probeOrder lists devices from most to least preferred.
var probeOrder = []device{
	{"cuda", gocv.NetBackendCUDA, gocv.NetTargetCUDA, false},
	{"opencl", gocv.NetBackendOpenCV, gocv.NetTargetFP32, false},
	{"cpu", gocv.NetBackendOpenCV, gocv.NetTargetCPU, true},
}

// Encoder wraps a loaded network. gocv.Net is not safe for concurrent
// forward passes, so calls are serialized.
type Encoder struct {
	mu     sync.Mutex
	net    gocv.Net
	device string
	dim    int
}

var _ tagger.Encoder = (*Encoder)(nil)

// Load reads the ONNX model and keeps the first device whose warm-up pass
// produces an embedding of the expected width.
func Load(modelPath string, dim int) (*Encoder, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	var failures []string
	for _, d := range probeOrder {
		enc, err := tryDevice(modelPath, d, dim)
		if err == nil {
			if !d.confirmed {
				logger.LogWarn("CLIP: %s requested; OpenCV runs on the CPU if it is unavailable", d.name)
			}
			logger.LogSuccess("CLIP encoder loaded on %s", enc.device)
			return enc, nil
		}
		logger.LogDebug("CLIP: %s unavailable: %v", d.name, err)
		failures = append(failures, d.name+": "+err.Error())
	}
	return nil, fmt.Errorf("no usable inference device (%s)", strings.Join(failures, "; "))
}

func tryDevice(modelPath string, d device, dim int) (enc *Encoder, err error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, errors.New("failed to load network")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("warm-up panic: %v", r)
		}
		if err != nil {
			net.Close()
		}
	}()

	if err := net.SetPreferableBackend(d.backend); err != nil {
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(d.target); err != nil {
		return nil, fmt.Errorf("set target: %w", err)
	}

	enc = &Encoder{net: net, device: tagger.DeviceLabel(d.name, d.confirmed), dim: dim}
	warm := image.NewRGBA(image.Rect(0, 0, tagger.InputSize, tagger.InputSize))
	if _, err := enc.EncodeImage(warm); err != nil {
		return nil, fmt.Errorf("warm-up: %w", err)
	}
	return enc, nil
}

// Device reports the device in use. Accelerators OpenCV cannot confirm carry
// a "(requested)" suffix.
func (e *Encoder) Device() string { return e.device }

// EncodeImage returns the raw (unnormalized) image embedding.
func (e *Encoder) EncodeImage(img image.Image) ([]float32, error) {
	blob, err := tensorMat(tagger.Preprocess(img))
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, errors.New("forward pass returned no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if e.dim > 0 && len(data) != e.dim {
		return nil, fmt.Errorf("%w: model returned %d values, want %d", tagger.ErrDimensionMismatch, len(data), e.dim)
	}

	emb := make([]float32, len(data))
	copy(emb, data)
	return emb, nil
}

// ReleaseMemory returns freed heap to the OS. OpenCV releases accelerator
// buffers with their Mats, which are closed after every pass.
func (e *Encoder) ReleaseMemory() {
	debug.FreeOSMemory()
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}

// tensorMat wraps an NCHW float32 tensor in a 4-D Mat.
func tensorMat(tensor []float32) (gocv.Mat, error) {
	raw := make([]byte, 4*len(tensor))
	for i, v := range tensor {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	sizes := []int{1, 3, tagger.InputSize, tagger.InputSize}
	m, err := gocv.NewMatWithSizesFromBytes(sizes, gocv.MatTypeCV32F, raw)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("build input tensor: %w", err)
	}
	return m, nil
}
