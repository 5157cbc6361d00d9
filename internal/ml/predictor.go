package ml

import (
	"fmt"
	"math"
	"time"

	"trendcast/internal/common"
)

// MetricsInterface defines metrics methods needed by the registry and predictors
type MetricsInterface interface {
	ModelLoadsInc(model string)
	ModelLoadFailuresInc(model string)
	InferenceLatencyObserve(float64)
}

// Label is the binary trend classification.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
)

// Predictor is a loaded model bound to its spec. It is immutable and safe
// for concurrent use.
type Predictor struct {
	spec       ModelSpec
	model      Model
	featureLen int
	loadedAt   time.Time
	metrics    MetricsInterface
}

func (p *Predictor) Spec() ModelSpec { return p.spec }

func (p *Predictor) LoadedAt() time.Time { return p.loadedAt }

// FeatureLength is the vector length Invoke accepts.
func (p *Predictor) FeatureLength() int { return p.featureLen }

// Invoke runs the model on a feature vector and returns its raw output.
func (p *Predictor) Invoke(fv []float64) (float64, error) {
	if len(fv) != p.featureLen {
		return 0, fmt.Errorf("%w: model %s expects %d features, got %d",
			common.ErrInference, p.spec.Name, p.featureLen, len(fv))
	}

	start := time.Now()
	raw := p.model.Predict(fv)
	if p.metrics != nil {
		p.metrics.InferenceLatencyObserve(time.Since(start).Seconds())
	}

	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: model %s produced non-finite output", common.ErrInference, p.spec.Name)
	}
	return raw, nil
}

// Decide maps a raw output to a label using the model's decision rule.
// Confidence is only reported for probability outputs.
func (p *Predictor) Decide(raw float64) (Label, *float64, error) {
	label, confidence, err := p.spec.Decision.Apply(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: model %s: %v", common.ErrInference, p.spec.Name, err)
	}
	return label, confidence, nil
}

// Apply maps a raw output to a label.
func (d Decision) Apply(raw float64) (Label, *float64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return "", nil, fmt.Errorf("non-finite output %v", raw)
	}

	switch d.Mode {
	case DecisionThreshold:
		if raw >= d.Threshold {
			return Positive, nil, nil
		}
		return Negative, nil, nil

	case DecisionClass:
		switch raw {
		case 1:
			return Positive, nil, nil
		case 0:
			return Negative, nil, nil
		}
		return "", nil, fmt.Errorf("unexpected class %v", raw)

	case DecisionProbability:
		if raw < 0 || raw > 1 {
			return "", nil, fmt.Errorf("probability %v outside [0,1]", raw)
		}
		if raw >= d.Threshold {
			c := raw
			return Positive, &c, nil
		}
		c := 1 - raw
		return Negative, &c, nil
	}
	return "", nil, fmt.Errorf("unknown decision mode %q", d.Mode)
}
