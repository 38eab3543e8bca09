// Package api serves the bridge over HTTP: tool listing, compilation,
// single-call execution and full chat turns.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/toolzflow/toolbridge/internal/dispatch"
	"github.com/toolzflow/toolbridge/internal/metrics"
	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/provider"
	"github.com/toolzflow/toolbridge/internal/toolcall"
	"github.com/toolzflow/toolbridge/internal/toolstore"
)

// maxBodyBytes caps request bodies; inline OpenAPI documents can be large.
const maxBodyBytes = 8 << 20

// Catalog lists and selects stored tools.
type Catalog interface {
	All() ([]openapi.ToolSpec, error)
	Select(ids []string) ([]openapi.ToolSpec, error)
}

// Compiler turns selected tools into function definitions.
type Compiler interface {
	Compile(ctx context.Context, specs []openapi.ToolSpec) (*openapi.Result, error)
}

// Dispatcher executes or resolves one function call.
type Dispatcher interface {
	Execute(ctx context.Context, details []*openapi.SchemaDetail, intent toolcall.Intent) (any, error)
	Resolve(details []*openapi.SchemaDetail, intent toolcall.Intent) (*dispatch.Request, error)
}

// Chatter runs one chat turn.
type Chatter interface {
	Process(ctx context.Context, messages []provider.Message, specs []openapi.ToolSpec) (string, error)
}

// Options wires a Server. Chat, Metrics and MCP are optional.
type Options struct {
	Catalog    Catalog
	Compiler   Compiler
	Dispatcher Dispatcher
	Chat       Chatter
	Metrics    *metrics.Metrics
	MCP        http.Handler
	APIKey     string
	Version    string
}

// Server holds the HTTP handlers.
type Server struct {
	opts Options
}

// New creates a Server.
func New(opts Options) *Server {
	return &Server{opts: opts}
}

// Handler returns the routed handler. /health and /metrics stay open; every
// other route requires the bearer token when one is configured.
func (s *Server) Handler() http.Handler {
	mx := http.NewServeMux()
	mx.HandleFunc("GET /health", healthHandler(s.opts.Version))
	mx.Handle("GET /metrics", s.opts.Metrics.Handler())

	auth := func(h http.Handler) http.Handler { return bearerAuthMiddleware(h, s.opts.APIKey) }
	mx.Handle("GET /v1/tools", auth(http.HandlerFunc(s.handleTools)))
	mx.Handle("POST /v1/compile", auth(http.HandlerFunc(s.handleCompile)))
	mx.Handle("POST /v1/execute", auth(http.HandlerFunc(s.handleExecute)))
	mx.Handle("POST /v1/chat", auth(http.HandlerFunc(s.handleChat)))
	mx.Handle("GET /v1/schemas", auth(http.HandlerFunc(s.handleSchemas)))
	if s.opts.MCP != nil {
		mx.Handle("/mcp", auth(s.opts.MCP))
		mx.Handle("/mcp/", auth(s.opts.MCP))
	}
	return mx
}

// healthHandler returns a simple JSON health endpoint handler.
func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"toolbridge","version":%q}`, version)
	}
}

func bearerAuthMiddleware(next http.Handler, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
				if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// --- handlers ---

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	specs, err := s.opts.Catalog.All()
	if err != nil {
		slog.Error("list tools failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list tools")
		return
	}
	resp := ToolsResponse{Tools: make([]ToolInfo, 0, len(specs))}
	for _, sp := range specs {
		resp.Tools = append(resp.Tools, ToolInfo{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			Platform:    sp.Schema == "",
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if !decode(w, r, &req) {
		return
	}
	res, ok := s.compile(w, r, req.Selection)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FunctionCall.Name == "" {
		writeError(w, http.StatusBadRequest, "function_call.name is required")
		return
	}
	res, ok := s.compile(w, r, req.Selection)
	if !ok {
		return
	}
	intent := toolcall.Intent{Name: req.FunctionCall.Name, Arguments: req.FunctionCall.Arguments}

	if req.DryRun {
		out, err := s.opts.Dispatcher.Resolve(res.SchemaDetails, intent)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ExecuteResponse{Result: out})
		return
	}

	out, err := s.opts.Dispatcher.Execute(r.Context(), res.SchemaDetails, intent)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{Result: out})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.opts.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	specs, ok := s.selectTools(w, req.Selection)
	if !ok {
		return
	}

	content, err := s.opts.Chat.Process(r.Context(), req.Messages, specs)
	if err != nil {
		if dispatch.IsStructural(err) {
			writeDispatchError(w, err)
			return
		}
		status, msg := provider.UserMessage(err)
		slog.Error("chat failed", slog.Int("status", status), slog.Any("error", err))
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Content: content})
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Schemas())
}

// --- helpers ---

func (s *Server) selectTools(w http.ResponseWriter, sel Selection) ([]openapi.ToolSpec, bool) {
	var specs []openapi.ToolSpec
	if len(sel.ToolIDs) > 0 {
		picked, err := s.opts.Catalog.Select(sel.ToolIDs)
		if err != nil {
			var nf *toolstore.NotFoundError
			if errors.As(err, &nf) {
				writeError(w, http.StatusNotFound, err.Error())
				return nil, false
			}
			slog.Error("select tools failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "failed to load tools")
			return nil, false
		}
		specs = append(specs, picked...)
	}
	return append(specs, sel.Tools...), true
}

func (s *Server) compile(w http.ResponseWriter, r *http.Request, sel Selection) (*openapi.Result, bool) {
	specs, ok := s.selectTools(w, sel)
	if !ok {
		return nil, false
	}
	res, err := s.opts.Compiler.Compile(r.Context(), specs)
	if err != nil {
		var (
			ce *openapi.CollisionError
			de *openapi.DuplicateFunctionError
		)
		if errors.As(err, &ce) || errors.As(err, &de) {
			writeError(w, http.StatusConflict, err.Error())
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return res, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeDispatchError maps structural call errors onto client errors. Any
// other failure reached the tool and is reported as a bad gateway.
func writeDispatchError(w http.ResponseWriter, err error) {
	var (
		pe *dispatch.ArgumentParseError
		ve *dispatch.ArgumentValidationError
		nf *dispatch.FunctionNotFoundError
		mp *dispatch.MissingParameterError
	)
	switch {
	case errors.As(err, &pe), errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &mp):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Warn("tool call failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Message: msg})
}
