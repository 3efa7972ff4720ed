// Package actions routes named client interactions to server-validated
// handlers. Dispatch always yields a structured result: handler errors,
// panics and unknown names surface as {success:false, error} and never
// escape the router boundary.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
	"github.com/Blueprint-Labs/blueprint/core/pkg/telemetry"
)

// ErrUnknownAction is wrapped into results for unregistered names. The
// wire-visible message is exactly "unknown action".
var ErrUnknownAction = errors.New("unknown action")

// Handler executes one named action. It validates its own payload (via the
// declared schema plus any checks inside Execute), performs the side
// effect, and reports either a full schema update, an ordered list of
// atomic actions, or nothing (a pure side effect).
type Handler interface {
	// Name is the action name clients dispatch.
	Name() string
	// PayloadSchema returns a JSON Schema for the payload, or "" when the
	// handler accepts any payload.
	PayloadSchema() string
	Execute(ctx context.Context, req *schema.ActionRequest) (*schema.ActionResult, error)
}

type compiledHandler struct {
	handler Handler
	payload *jsonschema.Schema // nil when unconstrained
}

// Builder assembles the handler set at startup. Registration is
// last-write-wins: re-registering a name overwrites and logs, which keeps
// hot-reload of handler sets possible while the final set stays auditable.
type Builder struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{
		handlers: make(map[string]Handler),
		logger:   slog.Default().With("component", "actions"),
	}
}

// Register adds a handler, replacing any previous handler of the same name.
func (b *Builder) Register(h Handler) *Builder {
	name := h.Name()
	if _, exists := b.handlers[name]; exists {
		b.logger.Warn("action handler overwritten", "action", name)
	}
	b.handlers[name] = h
	return b
}

// RouterOption configures a Router at build time.
type RouterOption func(*Router)

// WithRecorder injects the telemetry recorder.
func WithRecorder(r telemetry.Recorder) RouterOption {
	return func(rt *Router) { rt.recorder = r }
}

// WithReceipts enables receipt persistence for dispatches.
func WithReceipts(store ReceiptStore) RouterOption {
	return func(rt *Router) { rt.receipts = store }
}

// Build compiles every declared payload schema and freezes the router.
func (b *Builder) Build(opts ...RouterOption) (*Router, error) {
	r := &Router{
		handlers: make(map[string]compiledHandler, len(b.handlers)),
		recorder: telemetry.Default(),
		logger:   b.logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	for name, h := range b.handlers {
		ch := compiledHandler{handler: h}
		if src := h.PayloadSchema(); src != "" {
			c := jsonschema.NewCompiler()
			c.Draft = jsonschema.Draft2020
			url := fmt.Sprintf("https://blueprint.schemas.local/actions/%s.schema.json", name)
			if err := c.AddResource(url, strings.NewReader(src)); err != nil {
				return nil, fmt.Errorf("action %s: load payload schema: %w", name, err)
			}
			compiled, err := c.Compile(url)
			if err != nil {
				return nil, fmt.Errorf("action %s: compile payload schema: %w", name, err)
			}
			ch.payload = compiled
		}
		r.handlers[name] = ch
	}
	return r, nil
}

// Router dispatches action requests to their handlers.
type Router struct {
	handlers map[string]compiledHandler
	recorder telemetry.Recorder
	receipts ReceiptStore
	logger   *slog.Logger
	now      func() time.Time
}

// Actions lists the registered action names.
func (r *Router) Actions() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}

// Dispatch executes the named action and always returns a structured
// result. The router makes no idempotence guarantee: dispatching a
// non-idempotent action twice performs its side effect twice.
func (r *Router) Dispatch(ctx context.Context, req *schema.ActionRequest) *schema.ActionResult {
	spanID := uuid.NewString()
	r.recorder.StartSpan(spanID, telemetry.SpanDispatch)
	start := r.now()

	result := r.dispatch(ctx, req)

	r.recorder.EndSpan(spanID, telemetry.SpanDispatch)
	r.record(ctx, req, result, r.now().Sub(start))
	return result
}

func (r *Router) dispatch(ctx context.Context, req *schema.ActionRequest) *schema.ActionResult {
	ch, ok := r.handlers[req.ActionName]
	if !ok {
		r.recorder.RecordEvent(telemetry.Event{
			Kind:  telemetry.EventUnknown,
			Attrs: map[string]any{"action": req.ActionName},
		})
		return &schema.ActionResult{Success: false, Error: ErrUnknownAction.Error()}
	}

	if ch.payload != nil {
		if err := ch.payload.Validate(toValidatable(req.Payload)); err != nil {
			return &schema.ActionResult{
				Success: false,
				Error:   fmt.Sprintf("invalid payload: %v", err),
			}
		}
	}

	result, err := r.execute(ctx, ch.handler, req)
	if err != nil {
		r.logger.Warn("action failed",
			"action", req.ActionName,
			"workspace_id", req.Context.WorkspaceID,
			"error", err,
		)
		return &schema.ActionResult{Success: false, Error: err.Error()}
	}
	if result == nil {
		result = &schema.ActionResult{Success: true}
	}
	if !result.Success {
		// Failed results never carry mutations for the client to apply.
		result.AtomicActions = nil
		result.SchemaUpdate = nil
	}
	return result
}

// execute confines handler panics to the handler boundary.
func (r *Router) execute(ctx context.Context, h Handler, req *schema.ActionRequest) (result *schema.ActionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return h.Execute(ctx, req)
}

func (r *Router) record(ctx context.Context, req *schema.ActionRequest, res *schema.ActionResult, d time.Duration) {
	if r.receipts == nil {
		return
	}
	receipt := &Receipt{
		ID:          uuid.NewString(),
		Action:      req.ActionName,
		WorkspaceID: req.Context.WorkspaceID,
		UserID:      req.Context.UserID,
		SessionID:   req.Context.SessionID,
		Success:     res.Success,
		Error:       res.Error,
		DurationMs:  d.Milliseconds(),
		CreatedAt:   r.now().UTC(),
	}
	if err := r.receipts.Record(ctx, receipt); err != nil {
		r.logger.Warn("receipt write failed", "action", req.ActionName, "error", err)
	}
}

// toValidatable converts a nil payload into the empty-object form the
// schema validator expects.
func toValidatable(payload map[string]any) any {
	if payload == nil {
		return map[string]any{}
	}
	return anyify(payload)
}

// anyify normalizes nested typed values (e.g. ints) the way a JSON
// round-trip would, so schema validation sees wire-equivalent data.
func anyify(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = anyify(t)
		case int:
			out[k] = float64(t)
		case int64:
			out[k] = float64(t)
		default:
			out[k] = v
		}
	}
	return out
}
