package common

import "errors"

// Prediction pipeline failures. Lower layers wrap these with context and
// callers match them with errors.Is.
var (
	ErrModelNotFound     = errors.New("model not found")
	ErrModelLoad         = errors.New("model load failed")
	ErrInvalidInputShape = errors.New("invalid input shape")
	ErrDataUnavailable   = errors.New("market data unavailable")
	ErrInference         = errors.New("inference failed")
)
