package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Blueprint-Labs/blueprint/core/pkg/actions"
	"github.com/Blueprint-Labs/blueprint/core/pkg/generator"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
	"github.com/Blueprint-Labs/blueprint/core/pkg/stream"
	"github.com/Blueprint-Labs/blueprint/core/pkg/telemetry"
)

// Server wires the SDUI core into HTTP handlers.
type Server struct {
	generator *generator.Service
	router    *actions.Router
	hub       *stream.Hub
	recorder  telemetry.Recorder
	logger    *slog.Logger
}

// NewServer creates the HTTP surface over the given core services. The hub
// may be nil when no push channel is deployed.
func NewServer(gen *generator.Service, router *actions.Router, hub *stream.Hub, recorder telemetry.Recorder) *Server {
	return &Server{
		generator: gen,
		router:    router,
		hub:       hub,
		recorder:  recorder,
		logger:    slog.Default().With("component", "api"),
	}
}

// Routes returns the mux with all endpoints registered, wrapped in the
// standard middleware stack.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/workspaces/{id}/page", s.handlePage)
	mux.HandleFunc("POST /v1/actions", s.handleDispatch)
	mux.HandleFunc("POST /v1/cache/warm", s.handleWarm)
	mux.HandleFunc("GET /v1/telemetry/summary", s.handleTelemetrySummary)
	mux.HandleFunc("GET /v1/workspaces/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /health/live", s.handleLive)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	var h http.Handler = mux
	h = Logging(s.logger)(h)
	h = Recover(s.logger)(h)
	h = RequestID(h)
	return h
}

// handlePage serves the generated page schema for a workspace and stage.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if workspaceID == "" {
		WriteBadRequest(w, "missing workspace id")
		return
	}
	stage := schema.LifecycleStage(r.URL.Query().Get("stage"))
	if stage == "" {
		stage = schema.StageOpportunity
	}

	gctx := generator.GenerateContext{
		Stage:     stage,
		SessionID: r.URL.Query().Get("sessionId"),
		TraceID:   w.Header().Get("X-Request-ID"),
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		gctx.Priority = schema.Priority(p)
	}

	page, err := s.generator.Generate(r.Context(), workspaceID, gctx)
	if err != nil {
		// The only generation failure is an unregistered stage: a
		// deployment/config mismatch the caller must see.
		WriteBadRequest(w, err.Error())
		return
	}

	if etag, err := schema.Fingerprint(page); err == nil {
		// The validator header belongs on the 304 too (RFC 9110 §15.4.5).
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, page)
}

// dispatchEnvelope is the wire form of an action request. Transport-level
// identity fields travel in context, alongside the payload, never inside.
type dispatchEnvelope struct {
	Action  string               `json:"action"`
	Payload map[string]any       `json:"payload,omitempty"`
	Context schema.ActionContext `json:"context"`
}

// handleDispatch routes one action. Action failures are data, not HTTP
// errors: the response is always a structured ActionResult.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var env dispatchEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if env.Action == "" || env.Context.WorkspaceID == "" {
		WriteBadRequest(w, "missing required fields: action, context.workspaceId")
		return
	}
	if env.Context.TraceID == "" {
		env.Context.TraceID = w.Header().Get("X-Request-ID")
	}

	req := &schema.ActionRequest{
		ActionName: env.Action,
		Payload:    env.Payload,
		Context:    env.Context,
	}
	result := s.router.Dispatch(r.Context(), req)

	// Fan successful visual changes out to the workspace's other clients.
	if s.hub != nil && result.Success && (result.SchemaUpdate != nil || len(result.AtomicActions) > 0) {
		s.hub.Publish(env.Context.WorkspaceID, result)
	}
	writeJSON(w, http.StatusOK, result)
}

type warmRequest struct {
	WorkspaceIDs []string              `json:"workspaceIds"`
	Stage        schema.LifecycleStage `json:"stage"`
}

func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req warmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if len(req.WorkspaceIDs) == 0 {
		WriteBadRequest(w, "missing required field: workspaceIds")
		return
	}
	if req.Stage == "" {
		req.Stage = schema.StageOpportunity
	}
	report := s.generator.Warm(r.Context(), req.WorkspaceIDs, generator.GenerateContext{Stage: req.Stage})
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTelemetrySummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recorder.Summary())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		WriteNotFound(w, "update stream not enabled")
		return
	}
	workspaceID := r.PathValue("id")
	if workspaceID == "" {
		WriteBadRequest(w, "missing workspace id")
		return
	}
	if err := s.hub.Subscribe(w, r, workspaceID); err != nil {
		s.logger.Warn("websocket upgrade failed", "workspace_id", workspaceID, "error", err)
	}
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
