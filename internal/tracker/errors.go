package tracker

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ConfigError reports a missing or unusable client setting. It is returned
// before any request is made, so startup can tell an operator mistake apart
// from an API failure.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// APIError represents a non-success response from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// RateLimitError reports that GitHub throttled the client. RetryAfter is the
// server-advised wait, taken from the Retry-After header or the
// X-RateLimit-Reset timestamp; zero when the server gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// newRateLimitError derives the advised wait from the response headers.
func newRateLimitError(resp *http.Response) *RateLimitError {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return &RateLimitError{RetryAfter: time.Duration(secs) * time.Second}
		}
	}
	if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
		if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
			if wait := time.Until(time.Unix(unix, 0)); wait > 0 {
				return &RateLimitError{RetryAfter: wait}
			}
		}
	}
	return &RateLimitError{}
}
