package api

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/provider"
)

// Selection picks the tools a request runs against: stored tools by id,
// followed by inline tool records. Order matters for route precedence.
type Selection struct {
	ToolIDs []string           `json:"tool_ids,omitempty" jsonschema:"description=Stored or platform tool ids in merge order"`
	Tools   []openapi.ToolSpec `json:"tools,omitempty" jsonschema:"description=Inline tool records appended after tool_ids"`
}

// ToolInfo is one entry of GET /v1/tools.
type ToolInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Platform    bool   `json:"platform"`
}

// ToolsResponse is the body of GET /v1/tools.
type ToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}

// CompileRequest is the body of POST /v1/compile.
type CompileRequest struct {
	Selection
}

// FunctionCall is a model's request to run one function. Arguments may be
// a JSON object or a string holding one.
type FunctionCall struct {
	Name      string          `json:"name" jsonschema:"required"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ExecuteRequest is the body of POST /v1/execute.
type ExecuteRequest struct {
	Selection
	FunctionCall FunctionCall `json:"function_call" jsonschema:"required"`
	// DryRun returns the HTTP request that would be sent instead of sending it.
	DryRun bool `json:"dry_run,omitempty"`
}

// ExecuteResponse is the body of a successful POST /v1/execute.
type ExecuteResponse struct {
	Result any `json:"result"`
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Selection
	Messages []provider.Message `json:"messages" jsonschema:"required,minItems=1"`
}

// ChatResponse is the body of a successful POST /v1/chat.
type ChatResponse struct {
	Content string `json:"content"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Message string `json:"message"`
}

// schemaDTOs is reflected by Schemas.
type schemaDTOs struct {
	Compile  CompileRequest  `json:"compile"`
	Execute  ExecuteRequest  `json:"execute"`
	Result   ExecuteResponse `json:"execute_response"`
	Chat     ChatRequest     `json:"chat"`
	Reply    ChatResponse    `json:"chat_response"`
	Tools    ToolsResponse   `json:"tools_response"`
	Failure  ErrorResponse   `json:"error"`
	Compiled openapi.Result  `json:"compile_response"`
}

// Schemas returns the JSON Schema of the API's request and response bodies.
func Schemas() *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	return r.Reflect(&schemaDTOs{})
}
