package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/duynguyendang/lmerec/internal/manager"
	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
)

// Common sentinel errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal error")
)

// AppError represents an application-specific error with an HTTP status code.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MapError maps a known error to an AppError with an appropriate HTTP status code.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}

	// Check for existing AppError
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return NewAppError(http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, dict.ErrNotFound):
		return NewAppError(http.StatusNotFound, "Resource not found", err)
	case errors.Is(err, manager.ErrNotReady):
		return NewAppError(http.StatusServiceUnavailable, "Recommender is still loading", err)
	case errors.Is(err, manager.ErrRebuildInProgress):
		return NewAppError(http.StatusConflict, "A rebuild is already running", err)
	case errors.Is(err, bundle.ErrNoSource):
		return NewAppError(http.StatusPreconditionFailed, "No triple source configured", err)
	case errors.Is(err, bundle.ErrArtifactMismatch), errors.Is(err, embed.ErrIDSpaceMismatch):
		return NewAppError(http.StatusInternalServerError, "Artifacts are inconsistent, rebuild required", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewAppError(http.StatusGatewayTimeout, "Request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewAppError(499, "Request cancelled", err)
	}

	// Default to internal server error
	return NewAppError(http.StatusInternalServerError, "Internal server error", err)
}
