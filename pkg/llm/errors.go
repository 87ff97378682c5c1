package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures for callers.
type ErrorKind string

const (
	// KindUnauthenticated means a missing or rejected credential.
	KindUnauthenticated ErrorKind = "provider_unauthenticated"
	// KindRateLimited means the backend asked us to slow down; the call may
	// be retried after a delay.
	KindRateLimited ErrorKind = "provider_rate_limited"
	// KindUnavailable covers network failures, timeouts and backend 5xx.
	KindUnavailable ErrorKind = "provider_unavailable"
	// KindMalformedResponse means the response did not match the expected
	// structure. Hard failure, never retried.
	KindMalformedResponse ErrorKind = "provider_malformed_response"
)

// ProviderError is the uniform failure type surfaced by every provider and
// embedding backend.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int // HTTP status when applicable, 0 otherwise
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// KindOf extracts the error kind, or empty string for non-provider errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsRetryable reports whether the failure is worth a bounded retry. Only
// rate limiting qualifies; everything else propagates immediately.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRateLimited
}

// ClassifyHTTP maps a provider HTTP status to the failure taxonomy.
func ClassifyHTTP(provider string, status int, body string) *ProviderError {
	kind := KindUnavailable
	switch {
	case status == 401 || status == 403:
		kind = KindUnauthenticated
	case status == 429:
		kind = KindRateLimited
	}
	return &ProviderError{Provider: provider, Kind: kind, Status: status, Message: truncate(body, 200)}
}

// ClassifyTransport maps a transport-level error (dial, timeout, context
// deadline) to the taxonomy.
func ClassifyTransport(provider string, err error) *ProviderError {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &ProviderError{Provider: provider, Kind: KindUnavailable, Message: msg}
}

// Malformed builds a malformed-response error.
func Malformed(provider, detail string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindMalformedResponse, Message: detail}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
