package tagger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"galleria/pkg/logger"
)

const (
	DefaultThreshold = 0.10
	DefaultMaxTags   = 3
	DefaultTimeout   = 10 * time.Second
	DefaultQueueSize = 16
)

var (
	// ErrOutOfMemory marks accelerator allocation failures; the suggester
	// asks the encoder to release cached memory when it sees one.
	ErrOutOfMemory = errors.New("out of memory")

	ErrBusy   = errors.New("tagger queue is full")
	ErrClosed = errors.New("tagger is closed")
)

// Encoder produces an image embedding in the same space as the label
// embeddings. It is loaded once per process.
type Encoder interface {
	EncodeImage(img image.Image) ([]float32, error)
	Device() string
	ReleaseMemory()
	Close() error
}

// DeviceLabel names the device an encoder runs on. An unconfirmed device is
// one the runtime may have replaced with the CPU without reporting it.
func DeviceLabel(name string, confirmed bool) string {
	if confirmed || name == "" {
		return name
	}
	return name + " (requested)"
}

type Options struct {
	Threshold float64
	MaxTags   int
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Language  string
}

type job struct {
	img  image.Image
	resp chan jobResult
}

type jobResult struct {
	labels []Label
	err    error
}

// Suggester runs inference on its own worker goroutines so request handlers
// never execute the model themselves.
type Suggester struct {
	encoder Encoder
	labels  *LabelMatrix
	opts    Options

	jobs      chan job
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

func NewSuggester(enc Encoder, labels *LabelMatrix, opts Options) *Suggester {
	if opts.Threshold <= 0 || opts.Threshold >= 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = DefaultMaxTags
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	s := &Suggester{
		encoder: enc,
		labels:  labels,
		opts:    opts,
		jobs:    make(chan job, opts.QueueSize),
		closed:  make(chan struct{}),
	}

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	logger.LogInfo("Tagger ready on %s: %d labels, %d worker(s), threshold %.2f, top %d",
		enc.Device(), len(labels.Labels), opts.Workers, opts.Threshold, opts.MaxTags)
	return s
}

// Available reports whether suggestions can be produced.
func (s *Suggester) Available() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// Device names the inference device, or "" when unavailable.
func (s *Suggester) Device() string {
	if !s.Available() {
		return ""
	}
	return s.encoder.Device()
}

// Suggest returns display names of the most likely labels, or the fallback
// label when nothing is confident. Any failure, including a timeout, yields
// an empty list.
func (s *Suggester) Suggest(ctx context.Context, img image.Image) []string {
	labels, err := s.suggest(ctx, img)
	if err != nil {
		logger.LogWarn("Tagger: suggestion failed: %v", err)
		return []string{}
	}

	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Display(s.opts.Language)
	}
	return out
}

// SuggestBytes decodes data (honouring EXIF orientation) and calls Suggest.
func (s *Suggester) SuggestBytes(ctx context.Context, data []byte) []string {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		logger.LogWarn("Tagger: cannot decode image: %v", err)
		return []string{}
	}
	return s.Suggest(ctx, img)
}

func (s *Suggester) suggest(ctx context.Context, img image.Image) ([]Label, error) {
	if !s.Available() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	j := job{img: img, resp: make(chan jobResult, 1)}
	select {
	case s.jobs <- j:
	case <-s.closed:
		return nil, ErrClosed
	default:
		return nil, ErrBusy
	}

	select {
	case r := <-j.resp:
		return r.labels, r.err
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("inference: %w", ctx.Err())
	}
}

func (s *Suggester) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.closed:
			return
		case j := <-s.jobs:
			labels, err := s.infer(j.img)
			j.resp <- jobResult{labels: labels, err: err}
		}
	}
}

func (s *Suggester) infer(img image.Image) (labels []Label, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder panic: %v", r)
		}
		if err != nil && IsOutOfMemory(err) {
			logger.LogWarn("Tagger: out of memory on %s, releasing cached buffers", s.encoder.Device())
			s.encoder.ReleaseMemory()
		}
	}()

	start := time.Now()
	emb, err := s.encoder.EncodeImage(img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	ranked, err := Rank(emb, s.labels)
	if err != nil {
		return nil, err
	}

	labels = Select(ranked, s.opts.MaxTags, s.opts.Threshold)
	logger.LogDebug("Tagger: %s in %s (top %s %.3f)", labelKeys(labels), time.Since(start), ranked[0].Label.Key, ranked[0].Probability)
	return labels, nil
}

// Close stops the workers and releases the encoder.
func (s *Suggester) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.wg.Wait()
		err = s.encoder.Close()
	})
	return err
}

// IsOutOfMemory reports allocation failures from any backend.
func IsOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutOfMemory) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") || strings.Contains(msg, "insufficient memory")
}

func labelKeys(labels []Label) string {
	keys := make([]string, len(labels))
	for i, l := range labels {
		keys[i] = l.Key
	}
	return strings.Join(keys, ",")
}
