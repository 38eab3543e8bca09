package provider

import (
	"context"

	"github.com/toolzflow/toolbridge/internal/openapi"
)

// Message represents a chat message in the LLM conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents an LLM-requested tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function name + raw JSON arguments from the LLM.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON string
}

// Response is the LLM's reply to a chat request.
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
}

// ToolDefinition is an OpenAI-compatible function tool schema.
type ToolDefinition = openapi.ToolDefinition

// Provider is the interface for LLM backends.
type Provider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)
}
