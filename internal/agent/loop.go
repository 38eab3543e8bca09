// Package agent runs one chat turn: the model is offered the selected tools,
// its function calls are dispatched, and results are fed back until it answers.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolzflow/toolbridge/internal/dispatch"
	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/provider"
	"github.com/toolzflow/toolbridge/internal/toolcall"
)

const (
	// maxToolResultLen is the maximum characters for a single tool result before truncation.
	maxToolResultLen  = 30000
	maxRepeatFails    = 2
	iterWarnThreshold = 2
)

type failKey struct{ tool, err string }

// Compiler turns selected tools into function definitions.
type Compiler interface {
	Compile(ctx context.Context, specs []openapi.ToolSpec) (*openapi.Result, error)
}

// Dispatcher executes one function call against the compiled tools.
type Dispatcher interface {
	Execute(ctx context.Context, details []*openapi.SchemaDetail, intent toolcall.Intent) (any, error)
}

// Loop is the chat loop that runs a conversation through an LLM with tool calling.
type Loop struct {
	provider    provider.Provider
	compiler    Compiler
	dispatcher  Dispatcher
	maxIters    int
	turnTimeout time.Duration
	now         func() time.Time
}

// NewLoop creates a chat loop. A zero turnTimeout leaves the turn bounded
// only by the caller's context.
func NewLoop(p provider.Provider, c Compiler, d Dispatcher, maxIters int, turnTimeout time.Duration) *Loop {
	if maxIters <= 0 {
		maxIters = 1
	}
	return &Loop{
		provider:    p,
		compiler:    c,
		dispatcher:  d,
		maxIters:    maxIters,
		turnTimeout: turnTimeout,
		now:         time.Now,
	}
}

// Process compiles specs, then runs messages through the provider until it
// returns a text answer. Structural dispatch errors end the turn; any other
// tool failure is reported back to the model as {"error": ...}.
func (l *Loop) Process(ctx context.Context, messages []provider.Message, specs []openapi.ToolSpec) (string, error) {
	if l.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.turnTimeout)
		defer cancel()
	}

	var (
		details []*openapi.SchemaDetail
		tools   []provider.ToolDefinition
	)
	if len(specs) > 0 {
		compiled, err := l.compiler.Compile(ctx, specs)
		if err != nil {
			return "", fmt.Errorf("compile tools: %w", err)
		}
		details = compiled.SchemaDetails
		tools = compiled.Definitions()
	}
	if len(tools) > 0 {
		messages = WithToolsPrompt(messages, l.now())
	} else {
		messages = append([]provider.Message(nil), messages...)
	}

	// Track repeated identical tool failures to break infinite loops.
	failCounts := make(map[failKey]int)

	for iteration := 1; iteration <= l.maxIters; iteration++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		resp, err := l.provider.Chat(ctx, messages, tools)
		if err != nil {
			return "", fmt.Errorf("LLM call failed (iteration %d): %w", iteration, err)
		}

		// No tool calls: final text response.
		if len(resp.ToolCalls) == 0 {
			content := strings.TrimSpace(resp.Content)
			if content == "" {
				if iteration < l.maxIters {
					slog.Warn("empty LLM response, retrying", slog.Int("iteration", iteration))
					continue
				}
				return "", fmt.Errorf("empty model response after %d iterations", iteration)
			}
			return content, nil
		}

		calls := withCallIDs(resp.ToolCalls)
		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: calls,
		})

		// Tool responses must immediately follow the assistant message with tool_calls.
		var execErr error
		messages, execErr = l.executeToolCalls(ctx, details, messages, calls, iteration, failCounts)
		if execErr != nil {
			return "", execErr
		}

		if iteration == l.maxIters-iterWarnThreshold {
			slog.Warn("approaching iteration limit", slog.Int("iteration", iteration))
			messages = append(messages, provider.Message{
				Role: "user",
				Content: fmt.Sprintf(
					"SYSTEM: %d/%d tool rounds used. Answer with what you have unless another call is essential.",
					iteration, l.maxIters,
				),
			})
		}
	}

	return "", fmt.Errorf("max tool iterations reached (%d)", l.maxIters)
}

func (l *Loop) executeToolCalls(ctx context.Context, details []*openapi.SchemaDetail, messages []provider.Message, calls []provider.ToolCall, iteration int, failCounts map[failKey]int) ([]provider.Message, error) {
	for _, tc := range calls {
		name := tc.Function.Name
		slog.Info("executing tool", slog.String("function", name), slog.Int("iteration", iteration))

		res, err := l.dispatcher.Execute(ctx, details, toolcall.NewIntent(name, tc.Function.Arguments))
		var content string
		switch {
		case err == nil:
			content = encodeResult(res)
		case dispatch.IsStructural(err):
			return messages, fmt.Errorf("tool call %s: %w", name, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return messages, err
		default:
			errMsg := err.Error()
			slog.Warn("tool execution failed", slog.String("function", name), slog.Any("error", err))
			content = encodeResult(dispatch.ErrorResult{Error: errMsg})

			fk := failKey{tool: name, err: errMsg}
			failCounts[fk]++
			if failCounts[fk] > maxRepeatFails {
				return messages, fmt.Errorf("tool %q keeps failing with the same error (%q) after %d attempts",
					name, errMsg, failCounts[fk])
			}
		}

		if len(content) > maxToolResultLen {
			content = content[:maxToolResultLen] + "\n... (truncated)"
		}

		messages = append(messages, provider.Message{
			Role:       "tool",
			Content:    content,
			ToolCallID: tc.ID,
		})
	}
	return messages, nil
}

// withCallIDs fills in IDs some providers leave empty, so every tool
// message can be matched to its call.
func withCallIDs(calls []provider.ToolCall) []provider.ToolCall {
	out := make([]provider.ToolCall, len(calls))
	for i, tc := range calls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if tc.Type == "" {
			tc.Type = "function"
		}
		out[i] = tc
	}
	return out
}

func encodeResult(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, "unencodable result: "+err.Error())
	}
	return string(b)
}
