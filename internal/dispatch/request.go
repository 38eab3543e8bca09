package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/toolcall"
)

// Request is a fully resolved remote call. Building one has no side effects,
// so the same detail and arguments always give the same Request.
type Request struct {
	Function string          `json:"function"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Header   http.Header     `json:"header,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// HTTPRequest converts r into an *http.Request bound to ctx.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", r.Function, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// BuildRequest resolves the function name against detail and places the
// arguments. Body-mode routes become a JSON POST; query-mode routes become a
// GET whose query string carries the parameters not consumed by the path.
func BuildRequest(detail *openapi.SchemaDetail, name string, args toolcall.Arguments) (*Request, error) {
	route, ok := detail.Route(name)
	if !ok {
		return nil, &FunctionNotFoundError{Function: name}
	}

	params := args.Parameters
	used := make(map[string]bool)
	path, missing := openapi.ExpandPath(route.Path, func(param string) (string, bool) {
		v, ok := params[param]
		if !ok || v == nil {
			return "", false
		}
		s := formatValue(v)
		if s == "" {
			return "", false
		}
		used[param] = true
		return escapePathValue(s), true
	})
	if missing != "" {
		return nil, &MissingParameterError{Function: name, Parameter: missing}
	}

	base := strings.TrimRight(detail.Target.URL(), "/")
	custom := parseHeaders(detail.Headers)
	req := &Request{Function: name, Header: http.Header{}}

	if route.RequestInBody {
		body, err := json.Marshal(args.Body())
		if err != nil {
			return nil, fmt.Errorf("encode body for %s: %w", name, err)
		}
		req.Method = http.MethodPost
		req.URL = base + path
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	} else {
		q := url.Values{}
		for k, v := range params {
			if used[k] || v == nil {
				continue
			}
			q.Set(k, formatValue(v))
		}
		req.Method = http.MethodGet
		req.URL = base + path
		if len(q) > 0 {
			req.URL += "?" + q.Encode()
		}
	}
	for k, v := range custom {
		req.Header.Set(k, v)
	}
	return req, nil
}

// parseHeaders decodes a tool's custom headers. Anything other than a JSON
// object of strings is treated as no headers.
func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	var h map[string]string
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		slog.Warn("ignoring malformed custom headers", slog.Any("error", err))
		return nil
	}
	return h
}

// escapePathValue percent-encodes a path parameter the way a URI component
// is encoded, so reserved characters such as ; , = & @ : cannot change the
// meaning of the path.
func escapePathValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// formatValue renders a parameter value for a path segment or query string.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ",")
	case map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
