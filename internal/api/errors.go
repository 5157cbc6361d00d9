package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"trendcast/internal/common"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// FromError maps a pipeline error to its HTTP representation.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	status, code := http.StatusInternalServerError, "ERR_INTERNAL"
	switch {
	case errors.Is(err, common.ErrModelNotFound):
		status, code = http.StatusNotFound, "ERR_MODEL_NOT_FOUND"
	case errors.Is(err, common.ErrInvalidInputShape):
		status, code = http.StatusBadRequest, "ERR_INVALID_INPUT_SHAPE"
	case errors.Is(err, common.ErrDataUnavailable):
		status, code = http.StatusServiceUnavailable, "ERR_DATA_UNAVAILABLE"
	case errors.Is(err, common.ErrModelLoad):
		status, code = http.StatusInternalServerError, "ERR_MODEL_LOAD"
	case errors.Is(err, common.ErrInference):
		status, code = http.StatusInternalServerError, "ERR_INFERENCE"
	}
	return &AppError{Code: code, Message: err.Error(), Status: status, Err: err}
}

// AppErrorResponse writes err as a JSON error body with its mapped status.
func AppErrorResponse(c echo.Context, err error) error {
	appErr := FromError(err)
	return c.JSON(appErr.Status, appErr)
}
