package openai

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AuthorizationError covers 401/403 from the provider.
type AuthorizationError struct {
	StatusCode int
	Body       string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("openai authorization failed (http %d): %s", e.StatusCode, e.Body)
}

// RateLimitError covers 429, carrying the Retry-After value when present.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("openai rate limited (retry after %s): %s", e.RetryAfter, e.Body)
}

// InvalidRequestError covers request-shape validation failures and any
// non-retryable 4xx other than auth and rate limiting.
type InvalidRequestError struct {
	StatusCode int
	Message    string
}

func (e *InvalidRequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("openai invalid request: %s", e.Message)
	}
	return fmt.Sprintf("openai invalid request (http %d): %s", e.StatusCode, e.Message)
}

// ServiceUnavailableError covers 5xx, transport failures, and retry
// exhaustion.
type ServiceUnavailableError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *ServiceUnavailableError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("openai unavailable: %s", e.Message)
	}
	return fmt.Sprintf("openai unavailable (http %d): %s", e.StatusCode, e.Message)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Cause }

// DataError covers a 2xx body that fails to parse or validate; it is
// distinct from transport errors and never retried.
type DataError struct {
	Message string
	Cause   error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("openai data error: %s", e.Message)
}

func (e *DataError) Unwrap() error { return e.Cause }

// classifyStatus maps a non-2xx response to exactly one typed error.
func classifyStatus(statusCode int, header http.Header, body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &AuthorizationError{StatusCode: statusCode, Body: trimmed}
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(header), Body: trimmed}
	case statusCode >= 400 && statusCode < 500:
		return &InvalidRequestError{StatusCode: statusCode, Message: trimmed}
	default:
		return &ServiceUnavailableError{StatusCode: statusCode, Message: trimmed}
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	// Retry-After may also be an HTTP date.
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// retryableStatus reports whether a status code may be retried.
func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
