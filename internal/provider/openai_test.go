package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toolzflow/toolbridge/internal/openapi"
)

const testRetries = 2

// chatCompletion builds a minimal valid OpenAI chat completion JSON response.
func chatCompletion(content, finishReason string) []byte {
	resp := chatCompletionResponse{
		Choices: []chatChoice{
			{
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: finishReason,
			},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

// chatCompletionWithTools builds a chat completion JSON response that includes tool_calls.
func chatCompletionWithTools(content string, calls []apiToolCall) []byte {
	resp := chatCompletionResponse{
		Choices: []chatChoice{
			{
				Message:      chatMessage{Role: "assistant", Content: content, ToolCalls: calls},
				FinishReason: "tool_calls",
			},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

// openaiErrorBody returns an OpenAI-format error JSON body.
func openaiErrorBody(msg string) []byte {
	return []byte(fmt.Sprintf(`{"error":{"message":%q}}`, msg))
}

// newTestOpenAI constructs an OpenAI pointing at the given base URL with a
// short-timeout HTTP client and millisecond retry backoff.
func newTestOpenAI(baseURL string) *OpenAI {
	return NewOpenAI(Config{
		URL:        baseURL,
		APIKey:     "test-key",
		Model:      "test-model",
		Retries:    testRetries,
		RetryDelay: time.Millisecond,
		Timeout:    5 * time.Second,
	})
}

func userMsg(s string) []Message { return []Message{{Role: "user", Content: s}} }

// --- TestChat_Success -------------------------------------------------------

func TestChat_Success(t *testing.T) {
	const wantContent = "Hello from the LLM!"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(chatCompletion(wantContent, "stop"))
	}))
	defer srv.Close()

	resp, err := newTestOpenAI(srv.URL+"/").Chat(context.Background(), userMsg("ping"), nil)
	if err != nil {
		t.Fatalf("Chat() unexpected error: %v", err)
	}
	if resp.Content != wantContent {
		t.Errorf("Content = %q, want %q", resp.Content, wantContent)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("ToolCalls = %v, want empty", resp.ToolCalls)
	}
}

// --- TestChat_SendsTools ----------------------------------------------------

func TestChat_SendsTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write(chatCompletion("ok", "stop"))
	}))
	defer srv.Close()

	tools := []ToolDefinition{openapi.FunctionDef{
		Name:        "getWeather",
		Description: "weather",
		Parameters:  map[string]any{"type": "object"},
	}.Definition()}
	if _, err := newTestOpenAI(srv.URL).Chat(context.Background(), userMsg("hi"), tools); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got["model"] != "test-model" || got["tool_choice"] != "auto" {
		t.Errorf("request = %v", got)
	}
	sent := got["tools"].([]any)[0].(map[string]any)
	if sent["type"] != "function" || sent["function"].(map[string]any)["name"] != "getWeather" {
		t.Errorf("tool = %v", sent)
	}
}

// --- TestChat_WithToolCalls -------------------------------------------------

func TestChat_WithToolCalls(t *testing.T) {
	calls := []apiToolCall{
		{
			ID:   "call-abc",
			Type: "function",
			Function: apiFunction{
				Name:      "getWeather",
				Arguments: `{"parameters":{"city":"Paris"}}`,
			},
		},
		{ID: "call-def", Function: apiFunction{Name: "generateImage", Arguments: `{}`}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatCompletionWithTools("", calls))
	}))
	defer srv.Close()

	resp, err := newTestOpenAI(srv.URL).Chat(context.Background(), userMsg("weather?"), nil)
	if err != nil {
		t.Fatalf("Chat() unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("len(ToolCalls) = %d, want 2", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call-abc" || tc.Type != "function" || tc.Function.Name != "getWeather" {
		t.Errorf("ToolCall = %+v", tc)
	}
	if tc.Function.Arguments != `{"parameters":{"city":"Paris"}}` {
		t.Errorf("Function.Arguments = %q, want raw JSON", tc.Function.Arguments)
	}
	if resp.ToolCalls[1].Type != "function" {
		t.Errorf("missing type should default to function, got %q", resp.ToolCalls[1].Type)
	}
}

// --- TestChat_AuthError -----------------------------------------------------

// TestChat_AuthError verifies that a 401 response is returned immediately as a
// ProviderError without any retry attempts.
func TestChat_AuthError(t *testing.T) {
	var hitCount atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitCount.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write(openaiErrorBody("invalid api key"))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Chat(context.Background(), userMsg("hi"), nil)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if !pe.IsAuth() || pe.Message != "invalid api key" {
		t.Errorf("ProviderError = %+v", pe)
	}
	if n := hitCount.Load(); n != 1 {
		t.Errorf("server hit count = %d, want 1 (no retries on auth error)", n)
	}
}

// --- TestChat_TransientRetry ------------------------------------------------

func TestChat_TransientRetry(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hitCount atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hitCount.Add(1) <= testRetries {
					w.WriteHeader(status)
					_, _ = w.Write(openaiErrorBody("try again"))
					return
				}
				_, _ = w.Write(chatCompletion("recovered", "stop"))
			}))
			defer srv.Close()

			resp, err := newTestOpenAI(srv.URL).Chat(context.Background(), userMsg("test"), nil)
			if err != nil {
				t.Fatalf("Chat() unexpected error after retries: %v", err)
			}
			if resp.Content != "recovered" {
				t.Errorf("Content = %q", resp.Content)
			}
			if n := hitCount.Load(); n != testRetries+1 {
				t.Errorf("server hit count = %d, want %d", n, testRetries+1)
			}
		})
	}
}

// --- TestChat_MaxRetriesExhausted -------------------------------------------

func TestChat_MaxRetriesExhausted(t *testing.T) {
	var hitCount atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitCount.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(openaiErrorBody("always failing"))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Chat(context.Background(), userMsg("test"), nil)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v (%T), want *ProviderError", err, err)
	}
	if !pe.IsServerError() {
		t.Errorf("IsServerError() = false for status %d", pe.StatusCode)
	}
	if n := hitCount.Load(); n != testRetries+1 {
		t.Errorf("server hit count = %d, want %d (initial + %d retries)", n, testRetries+1, testRetries)
	}
}

// --- TestChat_CancelDuringBackoff -------------------------------------------

func TestChat_CancelDuringBackoff(t *testing.T) {
	var hitCount atomic.Int32
	hit := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitCount.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(openaiErrorBody("overloaded"))
		select {
		case hit <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	p := NewOpenAI(Config{
		URL:        srv.URL,
		APIKey:     "test-key",
		Model:      "test-model",
		Retries:    3,
		RetryDelay: 30 * time.Second,
		Timeout:    5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-hit
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := p.Chat(ctx, userMsg("test"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Chat() returned after %v, backoff ignored cancellation", elapsed)
	}
	if n := hitCount.Load(); n != 1 {
		t.Errorf("server hit count = %d, want 1", n)
	}
}

// --- TestChat_NetworkError --------------------------------------------------

func TestChat_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := newTestOpenAI(addr).Chat(context.Background(), userMsg("ping"), nil)
	if err == nil {
		t.Fatal("Chat() expected network error, got nil")
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		t.Errorf("network error should not be a ProviderError, got %T", err)
	}
}

// --- TestChat_EmptyChoices --------------------------------------------------

func TestChat_EmptyChoices(t *testing.T) {
	for name, body := range map[string]string{
		"empty":   `{"choices":[]}`,
		"blocked": `{"choices":[],"promptFeedback":{"blockReason":"SAFETY"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			if _, err := newTestOpenAI(srv.URL).Chat(context.Background(), userMsg("hi"), nil); err == nil {
				t.Fatal("Chat() expected error, got nil")
			}
		})
	}
}

// --- TestChat_MissingKey ----------------------------------------------------

func TestChat_MissingKey(t *testing.T) {
	p := NewOpenAI(Config{URL: "https://api.openai.com/v1", Model: "gpt-4o-mini"})
	_, err := p.Chat(context.Background(), userMsg("hi"), nil)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

// --- TestIsRetryable --------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"auth_401", &ProviderError{StatusCode: http.StatusUnauthorized}, false},
		{"auth_403", &ProviderError{StatusCode: http.StatusForbidden}, false},
		{"ratelimit", &ProviderError{StatusCode: http.StatusTooManyRequests}, true},
		{"server_500", &ProviderError{StatusCode: http.StatusInternalServerError}, true},
		{"bad_gateway", &ProviderError{StatusCode: http.StatusBadGateway}, true},
		{"not_found", &ProviderError{StatusCode: http.StatusNotFound}, false},
		{"network", errors.New("connection refused"), true},
		{"wrapped_provider", fmt.Errorf("wrap: %w", &ProviderError{StatusCode: 503}), true},
		{"canceled", fmt.Errorf("http request: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
		{"missing_key", ErrMissingAPIKey, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryable(tc.err); got != tc.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

// --- TestProviderError_Methods ----------------------------------------------

func TestProviderError_Methods(t *testing.T) {
	cases := []struct {
		status        int
		wantAuth      bool
		wantRate      bool
		wantServer    bool
		wantTransient bool
	}{
		{http.StatusUnauthorized, true, false, false, false},
		{http.StatusForbidden, true, false, false, false},
		{http.StatusTooManyRequests, false, true, false, true},
		{http.StatusInternalServerError, false, false, true, true},
		{http.StatusBadGateway, false, false, true, true},
		{http.StatusServiceUnavailable, false, false, true, true},
		{http.StatusGatewayTimeout, false, false, true, true},
		{http.StatusNotFound, false, false, false, false},
		{http.StatusBadRequest, false, false, false, false},
	}

	for _, tc := range cases {
		pe := &ProviderError{StatusCode: tc.status}
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			if got := pe.IsAuth(); got != tc.wantAuth {
				t.Errorf("IsAuth() = %v, want %v for %d", got, tc.wantAuth, tc.status)
			}
			if got := pe.IsRateLimit(); got != tc.wantRate {
				t.Errorf("IsRateLimit() = %v, want %v for %d", got, tc.wantRate, tc.status)
			}
			if got := pe.IsServerError(); got != tc.wantServer {
				t.Errorf("IsServerError() = %v, want %v for %d", got, tc.wantServer, tc.status)
			}
			if got := pe.IsTransient(); got != tc.wantTransient {
				t.Errorf("IsTransient() = %v, want %v for %d", got, tc.wantTransient, tc.status)
			}
		})
	}
}

// --- TestParseProviderError -------------------------------------------------

func TestParseProviderError(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		header     http.Header
		body       []byte
		wantMsg    string
		wantAfter  time.Duration
	}{
		{
			name:       "openai_format",
			statusCode: http.StatusUnauthorized,
			body:       []byte(`{"error":{"message":"invalid api key"}}`),
			wantMsg:    "invalid api key",
		},
		{
			name:       "google_format",
			statusCode: http.StatusTooManyRequests,
			body:       []byte(`{"error":{"message":"quota exceeded","details":[{"metadata":{"retryDelay":"30s"}}]}}`),
			wantMsg:    "quota exceeded",
			wantAfter:  30 * time.Second,
		},
		{
			name:       "retry_after_header",
			statusCode: http.StatusTooManyRequests,
			header:     http.Header{"Retry-After": []string{"7"}},
			body:       []byte(`{"error":{"message":"slow down"}}`),
			wantMsg:    "slow down",
			wantAfter:  7 * time.Second,
		},
		{
			name:       "plain_text_fallback",
			statusCode: http.StatusInternalServerError,
			body:       []byte("Internal Server Error\nsome extra details"),
			wantMsg:    "Internal Server Error",
		},
		{
			name:       "empty_body",
			statusCode: http.StatusBadGateway,
			body:       []byte(""),
			wantMsg:    "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := tc.header
			if header == nil {
				header = http.Header{}
			}
			pe := parseProviderError(tc.statusCode, header, tc.body)
			if pe.StatusCode != tc.statusCode {
				t.Errorf("StatusCode = %d, want %d", pe.StatusCode, tc.statusCode)
			}
			if pe.Message != tc.wantMsg {
				t.Errorf("Message = %q, want %q", pe.Message, tc.wantMsg)
			}
			if pe.RetryAfter != tc.wantAfter {
				t.Errorf("RetryAfter = %v, want %v", pe.RetryAfter, tc.wantAfter)
			}
		})
	}
}

// --- TestUserMessage --------------------------------------------------------

func TestUserMessage(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"missing key", fmt.Errorf("chat: %w", ErrMissingAPIKey), http.StatusBadRequest, "API Key not found. Please set it in your settings."},
		{"bad key", &ProviderError{StatusCode: 401, Message: "nope"}, 401, "API Key is incorrect. Please fix it in your settings."},
		{"forbidden", &ProviderError{StatusCode: 403, Message: "region blocked"}, 403, "region blocked"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "The request timed out"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := UserMessage(tc.err)
			if status != tc.wantStatus || msg != tc.wantMsg {
				t.Errorf("UserMessage = %d %q, want %d %q", status, msg, tc.wantStatus, tc.wantMsg)
			}
		})
	}
}

// --- fallback ---------------------------------------------------------------

func TestFallback(t *testing.T) {
	var primaryHits, fallbackHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write(openaiErrorBody("bad key"))
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHits.Add(1)
		var req map[string]any
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &req)
		if req["model"] != "primary-model" {
			t.Errorf("fallback model = %v, want inherited primary-model", req["model"])
		}
		_, _ = w.Write(chatCompletion("from fallback", "stop"))
	}))
	defer fallback.Close()

	p := New(
		Config{URL: primary.URL, APIKey: "k", Model: "primary-model", RetryDelay: time.Millisecond},
		&Config{URL: fallback.URL, RetryDelay: time.Millisecond},
	)
	resp, err := p.Chat(context.Background(), userMsg("hi"), nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "from fallback" || primaryHits.Load() != 1 || fallbackHits.Load() != 1 {
		t.Errorf("content=%q primary=%d fallback=%d", resp.Content, primaryHits.Load(), fallbackHits.Load())
	}
}

func TestNew_NoFallback(t *testing.T) {
	if _, ok := New(Config{URL: "http://x"}, nil).(*OpenAI); !ok {
		t.Error("New without fallback should return *OpenAI")
	}
	if _, ok := New(Config{URL: "http://x"}, &Config{}).(*OpenAI); !ok {
		t.Error("empty fallback config should be ignored")
	}
}
