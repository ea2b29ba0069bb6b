package contract

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrAdapterTimeout     = errors.New("adapter call timed out")
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	ErrAdapterRejected    = errors.New("adapter returned malformed response")
	ErrPartialResults     = errors.New("partial results only")
	ErrRecordNotFound     = errors.New("record not found")
	ErrPipelineAborted    = errors.New("pipeline aborted")
)

// Failure kinds consulted by the degradation policy. KindAny is the wildcard
// used in rule tables, never returned by FailureKind.
const (
	KindValidation  = "validation"
	KindTimeout     = "timeout"
	KindUnavailable = "unavailable"
	KindRejected    = "rejected"
	KindPartial     = "partial"
	KindUnknown     = "unknown"
	KindAny         = "*"
)

func wrapValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// FailureKind classifies an adapter error into the taxonomy above. Context
// deadline expiry counts as a timeout regardless of how the adapter wrapped it.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialResults):
		return KindPartial
	case errors.Is(err, ErrAdapterTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAdapterRejected):
		return KindRejected
	case errors.Is(err, ErrAdapterUnavailable):
		return KindUnavailable
	default:
		return KindUnknown
	}
}
