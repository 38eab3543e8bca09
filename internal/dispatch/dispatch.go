// Package dispatch executes a model's function call against the tool that
// defines it: in-process for platform tools, over HTTP for everything else.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/toolzflow/toolbridge/internal/metrics"
	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/platform"
	"github.com/toolzflow/toolbridge/internal/toolcall"
)

// maxResponseBytes caps how much of a remote response body is read.
const maxResponseBytes = 10 << 20

// Locals resolves platform functions by name.
type Locals interface {
	Lookup(name string) (platform.Function, bool)
}

// Dispatcher resolves and executes function calls. It holds no per-call
// state and is safe for concurrent use.
type Dispatcher struct {
	client   *http.Client
	locals   Locals
	validate bool
	metrics  *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for remote calls.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLocals sets the platform function registry.
func WithLocals(l Locals) Option {
	return func(d *Dispatcher) { d.locals = l }
}

// WithValidation turns on JSON Schema validation of arguments before dispatch.
func WithValidation(on bool) Option {
	return func(d *Dispatcher) { d.validate = on }
}

// WithMetrics records dispatch counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a Dispatcher. Without WithHTTPClient it uses a client with no
// timeout; the caller's context bounds each call.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range opts {
		o(d)
	}
	if d.client == nil {
		d.client = NewHTTPClient(0)
	}
	return d
}

// Execute runs intent against the tool in details that defines it.
//
// Malformed calls fail with one of the structural error types. A remote
// non-2xx answer is not an error: it comes back as ErrorResult so the model
// can see it. A successful empty body yields a nil result.
func (d *Dispatcher) Execute(ctx context.Context, details []*openapi.SchemaDetail, intent toolcall.Intent) (any, error) {
	start := time.Now()

	detail, args, err := d.resolve(details, intent)
	if err != nil {
		d.metrics.ObserveDispatch(metrics.ModeUnresolved, metrics.OutcomeStructural, 0)
		return nil, err
	}

	if _, ok := detail.Target.(openapi.LocalTarget); ok {
		res, err := d.executeLocal(ctx, intent.Name, args)
		d.observe(metrics.ModeLocal, err, res, start)
		return res, err
	}

	req, err := BuildRequest(detail, intent.Name, args)
	if err != nil {
		d.metrics.ObserveDispatch(metrics.ModeUnresolved, metrics.OutcomeStructural, 0)
		return nil, err
	}
	mode := metrics.ModeQuery
	if req.Method == http.MethodPost {
		mode = metrics.ModeBody
	}
	res, err := d.do(ctx, req)
	d.observe(mode, err, res, start)
	return res, err
}

// Resolve returns the HTTP request Execute would issue for intent without
// sending it. Platform functions have no request and resolve to nil.
func (d *Dispatcher) Resolve(details []*openapi.SchemaDetail, intent toolcall.Intent) (*Request, error) {
	detail, args, err := d.resolve(details, intent)
	if err != nil {
		return nil, err
	}
	if _, ok := detail.Target.(openapi.LocalTarget); ok {
		return nil, nil
	}
	return BuildRequest(detail, intent.Name, args)
}

func (d *Dispatcher) resolve(details []*openapi.SchemaDetail, intent toolcall.Intent) (*openapi.SchemaDetail, toolcall.Arguments, error) {
	args, err := toolcall.Parse(intent.Arguments)
	if err != nil {
		return nil, toolcall.Arguments{}, &ArgumentParseError{Function: intent.Name, Err: err}
	}
	detail := FindOwner(details, intent.Name)
	if detail == nil {
		return nil, args, &FunctionNotFoundError{Function: intent.Name}
	}
	if d.validate {
		if fn, ok := detail.Function(intent.Name); ok {
			if err := validateArguments(fn, args); err != nil {
				return nil, args, err
			}
		}
	}
	return detail, args, nil
}

// FindOwner returns the detail whose routes include name. Details are
// scanned from last to first, matching the last-wins route merge.
func FindOwner(details []*openapi.SchemaDetail, name string) *openapi.SchemaDetail {
	for i := len(details) - 1; i >= 0; i-- {
		d := details[i]
		if d == nil || d.Target == nil {
			continue
		}
		if _, ok := d.Route(name); ok {
			return d
		}
	}
	return nil
}

func (d *Dispatcher) executeLocal(ctx context.Context, name string, args toolcall.Arguments) (any, error) {
	if d.locals == nil {
		return nil, &FunctionNotFoundError{Function: name}
	}
	fn, ok := d.locals.Lookup(name)
	if !ok {
		return nil, &FunctionNotFoundError{Function: name}
	}
	res, err := fn.Invoke(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

func (d *Dispatcher) do(ctx context.Context, r *Request) (any, error) {
	req, err := r.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", r.Function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		slog.Debug("tool call failed",
			slog.String("function", r.Function),
			slog.Int("status", resp.StatusCode))
		return ErrorResult{Error: statusText(resp)}, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", r.Function, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", r.Function, err)
	}
	return out, nil
}

func (d *Dispatcher) observe(mode string, err error, res any, start time.Time) {
	outcome := metrics.OutcomeOK
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
		if IsStructural(err) {
			outcome = metrics.OutcomeStructural
		}
	case isErrorResult(res):
		outcome = metrics.OutcomeHTTPError
	}
	d.metrics.ObserveDispatch(mode, outcome, time.Since(start))
}

func isErrorResult(v any) bool {
	_, ok := v.(ErrorResult)
	return ok
}

// statusText returns the reason phrase of resp, e.g. "Not Found".
func statusText(resp *http.Response) string {
	code := fmt.Sprintf("%d", resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "HTTP " + code
}
