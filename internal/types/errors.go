package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the machine-readable code surfaced to API clients.
type ErrorCode string

const (
	CodeNoSnapshot          ErrorCode = "NO_SNAPSHOT"
	CodeExtractionFailed    ErrorCode = "EXTRACTION_FAILED"
	CodeNoRequirements      ErrorCode = "NO_REQUIREMENTS"
	CodeNoResume            ErrorCode = "NO_RESUME"
	CodeNoEvidenceRun       ErrorCode = "NO_EVIDENCE_RUN"
	CodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	CodeTooManyRequests     ErrorCode = "TOO_MANY_REQUESTS"
	CodeUpstreamFailed      ErrorCode = "UPSTREAM_FAILED"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
)

// ValidationError signals a missing or invalid precondition. It surfaces
// directly to the caller with an actionable message.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QuotaError signals an insufficient credit balance.
type QuotaError struct {
	Required int
	Balance  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: need %d credits, balance is %d",
		CodeInsufficientCredits, e.Required, e.Balance)
}

// RateLimitError carries the duration after which the caller may retry.
type RateLimitError struct {
	Family     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded for %s, retry after %ds",
		CodeTooManyRequests, e.Family, e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds the retry-after up to whole seconds, never
// returning zero for a positive duration.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter.Seconds())
	if e.RetryAfter > 0 && time.Duration(secs)*time.Second < e.RetryAfter {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// UpstreamError signals that the completion call failed or returned output
// that could not be trusted. It is retryable and always follows the refund
// path before surfacing.
type UpstreamError struct {
	Op    string
	Cause error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", CodeUpstreamFailed, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s", CodeUpstreamFailed, e.Op)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// ConflictError signals an overwrite attempted without the required
// confirmation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", CodeConflict, e.Message)
}

// CodeOf maps an error to its machine-readable code. Errors outside the
// typed taxonomy map to CodeUpstreamFailed.
func CodeOf(err error) ErrorCode {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Code
	}
	var qErr *QuotaError
	if errors.As(err, &qErr) {
		return CodeInsufficientCredits
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return CodeTooManyRequests
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return CodeConflict
	}
	return CodeUpstreamFailed
}
