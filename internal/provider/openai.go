package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Config describes one OpenAI-compatible chat completions endpoint.
type Config struct {
	URL        string
	APIKey     string
	Model      string
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// OpenAI is an OpenAI-compatible HTTP provider.
type OpenAI struct {
	apiURL string
	apiKey string
	model  string
	client *http.Client
	retry  retrypolicy.RetryPolicy[*Response]
}

// NewOpenAI creates a provider for cfg. Transient failures are retried
// cfg.Retries times with exponential backoff starting at cfg.RetryDelay.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAI{
		apiURL: strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  newRetryPolicy(cfg.Retries, cfg.RetryDelay),
	}
}

func newRetryPolicy(retries int, delay time.Duration) retrypolicy.RetryPolicy[*Response] {
	if retries < 0 {
		retries = 0
	}
	return retrypolicy.NewBuilder[*Response]().
		HandleIf(func(_ *Response, err error) bool { return isRetryable(err) }).
		WithMaxRetries(retries).
		WithBackoff(delay, 16*delay).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*Response]) {
			slog.Warn("retrying LLM request",
				slog.Int("attempt", e.Attempts()),
				slog.Any("error", e.LastError()))
		}).
		Build()
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.model }

// Chat sends a chat completion request and returns the response.
func (o *OpenAI) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	if o.apiKey == "" && strings.Contains(o.apiURL, "api.openai.com") {
		return nil, ErrMissingAPIKey
	}
	return failsafe.With(o.retry).WithContext(ctx).Get(func() (*Response, error) {
		return o.chatOnce(ctx, messages, tools)
	})
}

func (o *OpenAI) chatOnce(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	body := map[string]any{
		"model":    o.model,
		"messages": messages,
	}
	if len(tools) > 0 {
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseProviderError(resp.StatusCode, resp.Header, data)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(result.Choices) == 0 {
		if result.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason)
		}
		return nil, errEmptyChoices
	}

	choice := result.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:       tc.ID,
			Type:     typ,
			Function: FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	return out, nil
}

var errEmptyChoices = errors.New("empty choices in LLM response")

// OpenAI API response types.
type chatCompletionResponse struct {
	Choices        []chatChoice `json:"choices"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []apiToolCall `json:"tool_calls,omitempty"`
}

type apiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
