package features

import (
	"fmt"
	"math"
	"sort"

	"trendcast/internal/common"
)

// Spec declares the transform a model expects. It is read from the model
// manifest next to the artifact path.
type Spec struct {
	Name string `yaml:"name" json:"name"`
	Lags int    `yaml:"lags,omitempty" json:"lags,omitempty"`
}

// Transform turns a validated raw series into a feature vector.
type Transform struct {
	// outputLen reports the vector length for an input of n observations
	// or an error if the parameters do not fit.
	outputLen func(n int, s Spec) (int, error)
	apply     func(raw []float64, s Spec) []float64
	// positive marks transforms that divide by or take the log of prices.
	positive bool
}

var transforms = map[string]Transform{
	"identity": {
		outputLen: func(n int, _ Spec) (int, error) { return n, nil },
		apply: func(raw []float64, _ Spec) []float64 {
			out := make([]float64, len(raw))
			copy(out, raw)
			return out
		},
	},
	"pct_change_lags": {
		outputLen: lagOutputLen,
		apply: func(raw []float64, s Spec) []float64 {
			return lagged(raw, s.Lags, func(prev, cur float64) float64 {
				return (cur - prev) / prev
			})
		},
		positive: true,
	},
	"log_return_lags": {
		outputLen: lagOutputLen,
		apply: func(raw []float64, s Spec) []float64 {
			return lagged(raw, s.Lags, func(prev, cur float64) float64 {
				return math.Log(cur / prev)
			})
		},
		positive: true,
	},
}

// Names lists the registered transforms.
func Names() []string {
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputLength returns the feature vector length produced by s for an input
// of inputLen observations. Unknown transforms and parameters that do not fit
// the input length are configuration errors.
func OutputLength(s Spec, inputLen int) (int, error) {
	t, ok := transforms[s.Name]
	if !ok {
		return 0, fmt.Errorf("unknown feature transform %q", s.Name)
	}
	if inputLen <= 0 {
		return 0, fmt.Errorf("input length must be positive, got %d", inputLen)
	}
	return t.outputLen(inputLen, s)
}

// Build validates raw against the expected length and applies the declared
// transform. raw is ordered oldest first. The same input always produces
// the same vector.
func Build(raw []float64, inputLen int, s Spec) ([]float64, error) {
	t, ok := transforms[s.Name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown feature transform %q", common.ErrInvalidInputShape, s.Name)
	}
	if len(raw) != inputLen {
		return nil, fmt.Errorf("%w: expected %d observations, got %d", common.ErrInvalidInputShape, inputLen, len(raw))
	}
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: observation %d is not finite", common.ErrInvalidInputShape, i)
		}
		if t.positive && v <= 0 {
			return nil, fmt.Errorf("%w: observation %d must be positive, got %v", common.ErrInvalidInputShape, i, v)
		}
	}
	if _, err := t.outputLen(inputLen, s); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInputShape, err)
	}
	return t.apply(raw, s), nil
}

func lagOutputLen(n int, s Spec) (int, error) {
	if s.Lags < 1 || s.Lags > n-1 {
		return 0, fmt.Errorf("lags must be between 1 and %d for %d observations, got %d", n-1, n, s.Lags)
	}
	return s.Lags, nil
}

// lagged computes step changes between consecutive observations and returns
// the most recent lags of them, most recent first.
func lagged(raw []float64, lags int, step func(prev, cur float64) float64) []float64 {
	out := make([]float64, lags)
	last := len(raw) - 1
	for k := 0; k < lags; k++ {
		i := last - k
		out[k] = step(raw[i-1], raw[i])
	}
	return out
}
