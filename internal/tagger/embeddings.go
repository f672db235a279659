package tagger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// DefaultLogitScale is CLIP ViT-B/32's learned temperature (exp of the stored log scale).
const DefaultLogitScale = 100.0

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// LabelMatrix holds one L2-normalized text embedding per label.
type LabelMatrix struct {
	Labels     []Label
	Vectors    [][]float32
	LogitScale float64
}

// Dim is the embedding width.
func (m *LabelMatrix) Dim() int {
	if m == nil || len(m.Vectors) == 0 {
		return 0
	}
	return len(m.Vectors[0])
}

type embeddingsFile struct {
	Model      string               `json:"model"`
	LogitScale float64              `json:"logit_scale"`
	Labels     map[string][]float32 `json:"labels"`
}

// LoadLabelEmbeddings reads text embeddings exported from the same CLIP
// model as the image encoder. Every vocabulary key must be present.
func LoadLabelEmbeddings(path string, vocab []Label) (*LabelMatrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label embeddings: %w", err)
	}

	var file embeddingsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse label embeddings %s: %w", path, err)
	}

	vectors := make(map[string][]float32, len(vocab))
	for _, l := range vocab {
		v, ok := file.Labels[l.Key]
		if !ok {
			return nil, fmt.Errorf("label embeddings: missing %q", l.Key)
		}
		vectors[l.Key] = v
	}
	return NewLabelMatrix(vocab, vectors, file.LogitScale)
}

// NewLabelMatrix normalizes vectors and orders them like vocab. A
// non-positive scale falls back to DefaultLogitScale.
func NewLabelMatrix(vocab []Label, vectors map[string][]float32, logitScale float64) (*LabelMatrix, error) {
	if len(vocab) == 0 {
		return nil, errors.New("label embeddings: empty vocabulary")
	}
	if logitScale <= 0 {
		logitScale = DefaultLogitScale
	}

	m := &LabelMatrix{
		Labels:     append([]Label(nil), vocab...),
		Vectors:    make([][]float32, len(vocab)),
		LogitScale: logitScale,
	}

	dim := -1
	for i, l := range vocab {
		v := vectors[l.Key]
		if len(v) == 0 {
			return nil, fmt.Errorf("label embeddings: empty vector for %q", l.Key)
		}
		if dim >= 0 && len(v) != dim {
			return nil, fmt.Errorf("%w: %q has %d values, want %d", ErrDimensionMismatch, l.Key, len(v), dim)
		}
		dim = len(v)

		n, ok := normalize(v)
		if !ok {
			return nil, fmt.Errorf("label embeddings: zero vector for %q", l.Key)
		}
		m.Vectors[i] = n
	}
	return m, nil
}

// normalize returns an L2-normalized copy of v.
func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	inv := 1 / math.Sqrt(sum)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, true
}
