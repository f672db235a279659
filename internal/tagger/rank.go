package tagger

import (
	"fmt"
	"math"
	"sort"
)

// Prediction is a label with its softmax probability.
type Prediction struct {
	Label       Label
	Probability float64
}

// Rank scores an image embedding against every label: cosine similarity
// times the logit scale, then softmax. Results are sorted by descending
// probability; ties keep vocabulary order.
func Rank(image []float32, m *LabelMatrix) ([]Prediction, error) {
	if m == nil || len(m.Vectors) == 0 {
		return nil, fmt.Errorf("rank: no label embeddings")
	}
	if len(image) != m.Dim() {
		return nil, fmt.Errorf("%w: image has %d values, labels have %d", ErrDimensionMismatch, len(image), m.Dim())
	}

	img, ok := normalize(image)
	if !ok {
		return nil, fmt.Errorf("rank: degenerate image embedding")
	}

	logits := make([]float64, len(m.Vectors))
	for i, v := range m.Vectors {
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(img[j])
		}
		logits[i] = dot * m.LogitScale
	}

	probs := softmax(logits)
	preds := make([]Prediction, len(probs))
	for i, p := range probs {
		preds[i] = Prediction{Label: m.Labels[i], Probability: p}
	}
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Probability > preds[j].Probability
	})
	return preds, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Select keeps at most maxTags of the ranked predictions whose probability
// is strictly above threshold. When none qualify it returns Fallback alone.
func Select(ranked []Prediction, maxTags int, threshold float64) []Label {
	if maxTags > len(ranked) {
		maxTags = len(ranked)
	}

	out := make([]Label, 0, maxTags)
	for _, p := range ranked[:max(maxTags, 0)] {
		if p.Probability > threshold {
			out = append(out, p.Label)
		}
	}
	if len(out) == 0 {
		return []Label{Fallback}
	}
	return out
}
