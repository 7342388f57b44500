package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure categories.
var (
	// ErrInvalidParameter marks a caller bug; never retried.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrEmbeddingUnavailable marks an embedding gateway failure. Fatal to
	// the current indexing or pipeline invocation.
	ErrEmbeddingUnavailable = errors.New("embedding gateway unavailable")
	// ErrIndexUnavailable marks a vector index failure. Fatal during
	// indexing; downgraded to an empty result during retrieval.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrAnswerGateway marks a chat gateway failure during generation.
	ErrAnswerGateway = errors.New("answer gateway unavailable")
	// ErrUnsupportedFile is returned for file extensions with no extractor.
	ErrUnsupportedFile = errors.New("unsupported file extension")
)

// ParamError wraps ErrInvalidParameter with the constraint that failed.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

// NewParamError creates a ParamError.
func NewParamError(param, reason string) *ParamError {
	return &ParamError{Param: param, Reason: reason}
}
