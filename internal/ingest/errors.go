package ingest

import (
	"context"
	"errors"
	"fmt"

	"media-pipeline/internal/inspect"
)

// ErrOversizeInput rejects uploads larger than the configured ceiling
// before any processing happens.
var ErrOversizeInput = errors.New("ingest: input exceeds maximum upload size")

// Failure classes attached to batch outcomes.
const (
	// FailureValidation: the input itself is bad, retrying cannot help.
	FailureValidation = "validation"
	// FailureTransient: infrastructure trouble, a retry may succeed.
	FailureTransient = "transient"
	// FailureFatal: an internal invariant broke.
	FailureFatal = "fatal"
)

// TransientError marks a failure worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Classify maps an ingestion error to its failure class.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOversizeInput),
		errors.Is(err, inspect.ErrSignatureMismatch),
		errors.Is(err, inspect.ErrUnsupportedKind):
		return FailureValidation
	case isTransient(err):
		return FailureTransient
	default:
		return FailureFatal
	}
}

func isTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// stageError wraps a failure with the pipeline stage it happened in.
func stageError(stage string, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}
