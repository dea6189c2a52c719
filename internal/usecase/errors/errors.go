package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("resource not found")
	ErrInternalError = errors.New("internal server error")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionInactive = errors.New("session is no longer active")
)

// Enrichment errors
var (
	ErrEnrichmentCallFailed = errors.New("enrichment call failed")
	ErrEnrichmentMalformed  = errors.New("enrichment output malformed")
	ErrInvariantViolated    = errors.New("clinical state invariant violated")
	ErrReportFailed         = errors.New("report generation failed")
)

// EnrichmentError wraps a failed extraction call with the session it belonged
// to. Kind is one of the enrichment sentinels above.
type EnrichmentError struct {
	Kind      error
	SessionID string
	Err       error
}

func (e *EnrichmentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session %s: %v", e.SessionID, e.Kind)
	}
	return fmt.Sprintf("session %s: %v: %v", e.SessionID, e.Kind, e.Err)
}

// Is matches the failure kind so callers can use errors.Is with the sentinels
func (e *EnrichmentError) Is(target error) bool {
	return target == e.Kind
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

// NewEnrichmentError wraps err. When err already carries a kind (for example
// ErrEnrichmentMalformed from the parser) that kind is kept.
func NewEnrichmentError(sessionID string, err error) *EnrichmentError {
	kind := ErrEnrichmentCallFailed
	switch {
	case errors.Is(err, ErrEnrichmentMalformed):
		kind = ErrEnrichmentMalformed
	case errors.Is(err, ErrInvariantViolated):
		kind = ErrInvariantViolated
	}
	return &EnrichmentError{Kind: kind, SessionID: sessionID, Err: err}
}
