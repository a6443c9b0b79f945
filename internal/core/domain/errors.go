package domain

import (
	"errors"
	"fmt"
)

// Provider error taxonomy. Transient errors are retried at the call site with
// bounded backoff; everything else propagates immediately.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimited         = errors.New("provider rate limited")
	ErrUnauthorized        = errors.New("provider unauthorized")

	// ErrMalformedDecision marks LLM output that failed schema validation.
	// The router fails closed on it; the evaluator aborts the run.
	ErrMalformedDecision = errors.New("malformed decision")

	ErrRunNotFound   = errors.New("run not found")
	ErrBrandNotFound = errors.New("brand config not found")
)

// Transient reports whether an error is worth a bounded retry.
func Transient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}

// RunError is a typed failure surfaced to the caller, tagged with the
// workflow stage at which it occurred.
type RunError struct {
	Stage string // "planning", "tool_execution", "generation", "evaluation"
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError wraps err with its originating stage.
func NewRunError(stage string, err error) *RunError {
	return &RunError{Stage: stage, Err: err}
}
