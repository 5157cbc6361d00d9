package ml

import (
	"fmt"
	"io"
	"math"
)

// Kind tags the serialization format of a model artifact.
type Kind string

const (
	KindXGBoost Kind = "xgboost"
	KindLinear  Kind = "linear"
)

// maxArtifactBytes bounds how much of an artifact is read into memory.
const maxArtifactBytes = 64 << 20

// Model is a decoded, read-only inference object.
type Model interface {
	// NumFeatures is the feature vector length the model was trained on.
	NumFeatures() int
	// Predict returns the raw model output for a feature vector of
	// NumFeatures elements.
	Predict(features []float64) float64
}

// Known reports whether k is a supported artifact kind.
func (k Kind) Known() bool {
	switch k {
	case KindXGBoost, KindLinear:
		return true
	}
	return false
}

// DecodeModel reads an artifact of the given kind and runs its structural
// self-check.
func DecodeModel(kind Kind, r io.Reader) (Model, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if len(data) > maxArtifactBytes {
		return nil, fmt.Errorf("artifact exceeds %d bytes", maxArtifactBytes)
	}

	switch kind {
	case KindXGBoost:
		return decodeTreeEnsemble(data)
	case KindLinear:
		return decodeLinear(data)
	default:
		return nil, fmt.Errorf("unsupported model kind %q", kind)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
