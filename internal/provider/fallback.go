package provider

import (
	"context"
	"errors"
	"log/slog"
)

// withFallback wraps a primary Provider and retries on any error with a fallback.
type withFallback struct {
	primary  Provider
	fallback Provider
}

// New creates the primary provider and, when fallback is non-nil, chains a
// fallback provider after it. Empty fallback fields inherit from primary.
func New(primary Config, fallback *Config) Provider {
	p := NewOpenAI(primary)
	if fallback == nil || (fallback.URL == "" && fallback.APIKey == "") {
		return p
	}

	fb := *fallback
	if fb.URL == "" {
		fb.URL = primary.URL
	}
	if fb.Model == "" {
		fb.Model = primary.Model
	}
	if fb.APIKey == "" {
		fb.APIKey = primary.APIKey
	}
	if fb.Timeout == 0 {
		fb.Timeout = primary.Timeout
	}

	slog.Info("LLM fallback provider configured",
		slog.String("url", fb.URL),
		slog.String("model", fb.Model))

	return &withFallback{primary: p, fallback: NewOpenAI(fb)}
}

// Chat tries the primary provider; on any error tries the fallback.
func (w *withFallback) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	resp, err := w.primary.Chat(ctx, messages, tools)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	slog.Warn("primary LLM failed, trying fallback",
		slog.String("error", err.Error()),
		slog.Bool("auth_error", isAuthError(err)))

	resp, fallbackErr := w.fallback.Chat(ctx, messages, tools)
	if fallbackErr != nil {
		return nil, fallbackErr
	}
	return resp, nil
}

// isAuthError returns true if err is a 401 or 403 ProviderError.
func isAuthError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.IsAuth()
}
