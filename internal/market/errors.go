package market

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure for the circuit breaker and
// credential rotator. Anything unclassified counts as Transient.
type ErrorKind int

const (
	// ErrTransient covers timeouts, 5xx and malformed payloads; the caller
	// advances the fallback chain.
	ErrTransient ErrorKind = iota
	// ErrRateLimited signals provider-side throttling and trips the circuit
	// on a single occurrence.
	ErrRateLimited
	// ErrAuthFailure marks the credential exhausted; the same provider may be
	// retried with another key before the chain advances.
	ErrAuthFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrRateLimited:
		return "rate_limited"
	case ErrAuthFailure:
		return "auth_failure"
	default:
		return "transient"
	}
}

// ProviderError is the classified failure an adapter reports. RetryAfter is
// a provider-supplied hint (Retry-After header or payload field) and may be
// zero.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func Transient(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrTransient, Err: err}
}

func RateLimited(provider string, retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrRateLimited, RetryAfter: retryAfter, Err: err}
}

func AuthFailed(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrAuthFailure, Err: err}
}

// Classify wraps an arbitrary adapter error into a ProviderError, passing
// through errors that are already classified.
func Classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return Transient(provider, err)
}

// ClassifyStatus maps an unexpected status code. 429 means throttled,
// 401/403 means the key is bad or spent; everything else is transient.
func ClassifyStatus(provider string, resp *http.Response) *ProviderError {
	err := fmt.Errorf("unexpected status %d", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return RateLimited(provider, parseRetryAfter(resp), err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthFailed(provider, err)
	default:
		return Transient(provider, err)
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
