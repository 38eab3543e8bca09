package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when no API key is configured for a provider
// that requires one.
var ErrMissingAPIKey = errors.New("LLM API Key not found")

// ProviderError is a structured error from an LLM provider.
type ProviderError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Raw        string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("LLM API error %d: %s", e.StatusCode, e.Message)
}

// IsAuth returns true for 401/403 authentication errors.
func (e *ProviderError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRateLimit returns true for 429 quota/rate-limit errors.
func (e *ProviderError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true for 5xx server errors.
func (e *ProviderError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsTransient returns true if the error is worth retrying.
func (e *ProviderError) IsTransient() bool {
	return e.IsRateLimit() || e.IsServerError()
}

// isRetryable classifies an error from a single chat attempt. Transport
// failures are retried; provider errors only when transient; cancellation
// and a missing key never.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMissingAPIKey) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsTransient()
	}
	return true
}

// UserMessage turns a chat error into the message shown to an end user,
// the way the chat routes phrase key problems.
func UserMessage(err error) (status int, message string) {
	var pe *ProviderError
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return http.StatusBadRequest, "API Key not found. Please set it in your settings."
	case errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized:
		return pe.StatusCode, "API Key is incorrect. Please fix it in your settings."
	case errors.As(err, &pe):
		return pe.StatusCode, pe.Message
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The request timed out"
	}
	return http.StatusInternalServerError, "An unexpected error occurred"
}

// parseProviderError parses a non-200 HTTP response into a ProviderError.
func parseProviderError(statusCode int, header http.Header, body []byte) *ProviderError {
	pe := &ProviderError{
		StatusCode: statusCode,
		Raw:        string(body),
		RetryAfter: parseRetryAfterHeader(header.Get("Retry-After")),
	}

	// Google/Gemini format with details array (includes retry delay).
	var googleErr struct {
		Error struct {
			Message string `json:"message"`
			Details []struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &googleErr) == nil && googleErr.Error.Message != "" {
		pe.Message = googleErr.Error.Message
		for _, d := range googleErr.Error.Details {
			if delay, ok := d.Metadata["retryDelay"]; ok {
				pe.RetryAfter = parseRetryDelay(delay)
			}
		}
		return pe
	}

	// Fallback: first line of body
	s := strings.TrimSpace(string(body))
	if idx := strings.IndexByte(s, '\n'); idx > 0 {
		s = s[:idx]
	}
	pe.Message = truncate(s, 300)
	return pe
}

// parseRetryDelay parses strings like "30s", "2m", "5m30s".
func parseRetryDelay(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}

// parseRetryAfterHeader reads a Retry-After header given in seconds.
func parseRetryAfterHeader(v string) time.Duration {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
