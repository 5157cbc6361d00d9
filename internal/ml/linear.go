package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

type linearArtifact struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Link    string    `json:"link"`
}

// linearModel is a weighted sum with an optional logistic link.
type linearModel struct {
	weights  []float64
	bias     float64
	logistic bool
}

func decodeLinear(data []byte) (*linearModel, error) {
	var a linearArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse linear model: %w", err)
	}
	if len(a.Weights) == 0 {
		return nil, fmt.Errorf("linear model has no weights")
	}
	for i, w := range a.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("weight %d is not finite", i)
		}
	}

	m := &linearModel{weights: a.Weights, bias: a.Bias}
	switch a.Link {
	case "", "identity":
	case "logistic":
		m.logistic = true
	default:
		return nil, fmt.Errorf("unsupported link %q", a.Link)
	}
	return m, nil
}

func (m *linearModel) NumFeatures() int { return len(m.weights) }

func (m *linearModel) Predict(x []float64) float64 {
	sum := m.bias
	for i, w := range m.weights {
		sum += w * x[i]
	}
	if m.logistic {
		return sigmoid(sum)
	}
	return sum
}
