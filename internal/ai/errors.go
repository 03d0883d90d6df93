package ai

import (
	"errors"
	"fmt"
)

// ErrKind classifies adapter failures. Every adapter signals failure through
// a *ProviderError so callers never have to sniff error text.
type ErrKind string

const (
	ErrKindNotConfigured ErrKind = "not_configured"
	ErrKindUnauthorized  ErrKind = "unauthorized"
	ErrKindRateLimited   ErrKind = "rate_limited"
	ErrKindQuota         ErrKind = "quota_exceeded"
	ErrKindUnavailable   ErrKind = "unavailable"
	ErrKindTransport     ErrKind = "transport"
	ErrKindBadResponse   ErrKind = "bad_response"
)

// ProviderError is the single failure type returned by provider adapters.
type ProviderError struct {
	Provider Provider
	Kind     ErrKind
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a fallback provider is worth trying.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrKindRateLimited, ErrKindQuota, ErrKindUnavailable, ErrKindTransport:
		return true
	}
	return false
}

// notConfigured builds the error for a provider missing its credential.
// The message matches what the dashboard has always shown in its toast.
func notConfigured(p Provider) *ProviderError {
	return &ProviderError{
		Provider: p,
		Kind:     ErrKindNotConfigured,
		Message:  fmt.Sprintf("%s API key not configured", p),
	}
}

// statusError maps a non-2xx HTTP status onto an error kind.
func statusError(p Provider, status int, body string) *ProviderError {
	e := &ProviderError{Provider: p, Status: status}
	switch status {
	case 401:
		e.Kind = ErrKindUnauthorized
		e.Message = "invalid API key"
	case 402:
		e.Kind = ErrKindQuota
		e.Message = "API quota exhausted"
	case 403:
		e.Kind = ErrKindUnauthorized
		e.Message = "access denied - check API key permissions"
	case 429:
		e.Kind = ErrKindRateLimited
		e.Message = "rate limit exceeded"
	case 500, 502, 503, 504, 529:
		e.Kind = ErrKindUnavailable
		e.Message = "service temporarily unavailable"
	default:
		e.Kind = ErrKindBadResponse
		e.Message = fmt.Sprintf("request failed: %s", truncate(body, 200))
	}
	return e
}

func transportError(p Provider, err error) *ProviderError {
	return &ProviderError{
		Provider: p,
		Kind:     ErrKindTransport,
		Message:  "request failed",
		Err:      err,
	}
}

// AsProviderError unwraps err to a *ProviderError if there is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
