package mltrain

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LinearModel is a softmax classifier over FeatureLength-dimensional image
// features. It stands in for the named architecture's replaced classifier
// head — the Architecture field records which
// preferred_model the project requested, so the bundle's predict.py and
// README.txt can report it accurately even though the feature extractor
// below is architecture-agnostic.
type LinearModel struct {
	Architecture string      `json:"architecture"`
	Classes      []string    `json:"classes"`
	Weights      [][]float64 `json:"weights"` // [class][feature]
	Bias         []float64   `json:"bias"`    // [class]
}

// NewLinearModel builds a zero-initialized model for the given class list
// and architecture tag.
func NewLinearModel(architecture string, classes []string) *LinearModel {
	weights := make([][]float64, len(classes))
	for i := range weights {
		weights[i] = make([]float64, FeatureLength)
	}
	return &LinearModel{
		Architecture: architecture,
		Classes:      classes,
		Weights:      weights,
		Bias:         make([]float64, len(classes)),
	}
}

// logits computes the raw class scores for a feature vector.
func (m *LinearModel) logits(features []float64) []float64 {
	out := make([]float64, len(m.Classes))
	for c := range m.Classes {
		var sum float64
		w := m.Weights[c]
		for i, f := range features {
			sum += w[i] * f
		}
		out[c] = sum + m.Bias[c]
	}
	return out
}

// softmax normalizes logits into a probability distribution.
func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Predict returns the predicted class index and the full probability
// distribution for a feature vector.
func (m *LinearModel) Predict(features []float64) (classIdx int, probs []float64) {
	probs = softmax(m.logits(features))
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, probs
}

// Save serializes the model as JSON to path. The file is named model.pth
// by convention at the call site to match the expected bundle layout —
// the on-disk format itself is an implementation detail since
// no real torch runtime reads it back in this pipeline.
func (m *LinearModel) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadLinearModel reads a model previously written by Save.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	return &m, nil
}
