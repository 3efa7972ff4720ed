package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Blueprint-Labs/blueprint/core/pkg/generator"
	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
	"github.com/Blueprint-Labs/blueprint/core/pkg/templates"
)

// DiscoveryWriter persists a new discovery for a workspace.
type DiscoveryWriter interface {
	CreateDiscovery(ctx context.Context, workspaceID string, d hydrate.Discovery) error
}

// StageStore records which lifecycle stage a workspace is in.
type StageStore interface {
	SetStage(ctx context.Context, workspaceID string, stage schema.LifecycleStage) error
}

// FeedbackSink accepts user feedback. It exists so feedback.submit can be a
// genuine side effect without the router knowing where feedback goes.
type FeedbackSink interface {
	SubmitFeedback(ctx context.Context, workspaceID, userID, message string) error
}

// CreateDiscoveryHandler implements discovery.create: persist a discovery
// and surface it on the already-rendered page as an incremental update.
// Deliberately not idempotent: every dispatch creates a new entity.
type CreateDiscoveryHandler struct {
	Store DiscoveryWriter
	Now   func() time.Time
}

func (h *CreateDiscoveryHandler) Name() string { return "discovery.create" }

func (h *CreateDiscoveryHandler) PayloadSchema() string {
	return `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "required": ["title"],
	  "properties": {
	    "title": {"type": "string", "minLength": 1},
	    "summary": {"type": "string"},
	    "source": {"type": "string"}
	  }
	}`
}

func (h *CreateDiscoveryHandler) Execute(ctx context.Context, req *schema.ActionRequest) (*schema.ActionResult, error) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	title, _ := req.Payload["title"].(string)
	summary, _ := req.Payload["summary"].(string)
	source, _ := req.Payload["source"].(string)

	d := hydrate.Discovery{
		ID:         uuid.NewString(),
		Title:      title,
		Summary:    summary,
		Source:     source,
		CapturedAt: now().UnixMilli(),
	}
	if err := h.Store.CreateDiscovery(ctx, req.Context.WorkspaceID, d); err != nil {
		return nil, fmt.Errorf("create discovery: %w", err)
	}

	card := &schema.Section{
		Kind:             templates.KindDiscoveryCard,
		ID:               d.ID,
		ComponentVersion: 1,
		Props: map[string]any{
			"title":             d.Title,
			"summary":           d.Summary,
			"source":            d.Source,
			"capturedAtEpochMs": d.CapturedAt,
		},
	}
	// The card is added first so the follow-up mutate can resolve it.
	return &schema.ActionResult{
		Success: true,
		Data:    map[string]any{"discoveryId": d.ID},
		AtomicActions: []schema.AtomicAction{
			{
				Kind:      schema.ActionAdd,
				Target:    schema.ComponentSelector{Kind: templates.KindDiscoveryFeed},
				Position:  &schema.Position{Mode: schema.PositionAfter},
				Component: card,
				Reason:    "discovery created",
			},
			{
				Kind:   schema.ActionMutate,
				Target: schema.ComponentSelector{Kind: templates.KindDiscoveryCard, InstanceID: d.ID},
				Operations: []schema.PropMutation{
					{Path: "highlight", Operation: schema.OpSet, Value: true},
				},
				Reason: "draw attention to the new discovery",
			},
		},
	}, nil
}

// RefreshSectionHandler implements section.refresh: re-run one named fetch
// and rebind the section's props in place, without a full regeneration.
type RefreshSectionHandler struct {
	Source hydrate.Source
}

func (h *RefreshSectionHandler) Name() string { return "section.refresh" }

func (h *RefreshSectionHandler) PayloadSchema() string {
	return `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "required": ["section"],
	  "properties": {
	    "section": {
	      "enum": ["metrics-overview", "discovery-feed", "persona-fit", "kpi-grid"]
	    }
	  }
	}`
}

func (h *RefreshSectionHandler) Execute(ctx context.Context, req *schema.ActionRequest) (*schema.ActionResult, error) {
	section, _ := req.Payload["section"].(string)
	ws := req.Context.WorkspaceID

	var ops []schema.PropMutation
	switch section {
	case templates.KindMetricsOverview:
		metrics, err := h.Source.FetchMetrics(ctx, ws)
		if err != nil {
			return nil, fmt.Errorf("refresh metrics: %w", err)
		}
		ops = []schema.PropMutation{{Path: "metrics", Operation: schema.OpSet, Value: metrics}}
	case templates.KindDiscoveryFeed:
		discoveries, err := h.Source.FetchDiscoveries(ctx, ws)
		if err != nil {
			return nil, fmt.Errorf("refresh discoveries: %w", err)
		}
		ops = []schema.PropMutation{
			{Path: "discoveries", Operation: schema.OpSet, Value: discoveries},
			{Path: "count", Operation: schema.OpSet, Value: len(discoveries)},
		}
	case templates.KindPersonaFit:
		personas, err := h.Source.FetchPersonas(ctx, ws)
		if err != nil {
			return nil, fmt.Errorf("refresh personas: %w", err)
		}
		ops = []schema.PropMutation{{Path: "personas", Operation: schema.OpSet, Value: personas}}
	case templates.KindKPIGrid:
		targets, err := h.Source.FetchKPITargets(ctx, ws)
		if err != nil {
			return nil, fmt.Errorf("refresh kpi targets: %w", err)
		}
		ops = []schema.PropMutation{{Path: "targets", Operation: schema.OpSet, Value: targets}}
	default:
		return nil, fmt.Errorf("unrefreshable section %q", section)
	}

	return &schema.ActionResult{
		Success: true,
		AtomicActions: []schema.AtomicAction{
			{
				Kind:       schema.ActionMutate,
				Target:     schema.ComponentSelector{Kind: section},
				Operations: ops,
				Reason:     "manual refresh",
			},
		},
	}, nil
}

// AdvanceStageHandler implements stage.advance: a structural change, so the
// result is a full page replacement rather than incremental mutations.
type AdvanceStageHandler struct {
	Generator *generator.Service
	Stages    StageStore
}

func (h *AdvanceStageHandler) Name() string { return "stage.advance" }

func (h *AdvanceStageHandler) PayloadSchema() string {
	return `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "required": ["stage"],
	  "properties": {
	    "stage": {
	      "enum": ["opportunity", "target", "realization", "expansion", "integrity"]
	    }
	  }
	}`
}

func (h *AdvanceStageHandler) Execute(ctx context.Context, req *schema.ActionRequest) (*schema.ActionResult, error) {
	raw, _ := req.Payload["stage"].(string)
	stage := schema.LifecycleStage(raw)
	ws := req.Context.WorkspaceID

	if err := h.Stages.SetStage(ctx, ws, stage); err != nil {
		return nil, fmt.Errorf("record stage: %w", err)
	}
	// The cached page belongs to the previous stage now.
	if err := h.Generator.Invalidate(ctx, ws); err != nil {
		return nil, fmt.Errorf("invalidate cached page: %w", err)
	}
	page, err := h.Generator.Generate(ctx, ws, generator.GenerateContext{
		Stage:     stage,
		SessionID: req.Context.SessionID,
		TraceID:   req.Context.TraceID,
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s page: %w", stage, err)
	}
	return &schema.ActionResult{
		Success:      true,
		Data:         map[string]any{"stage": string(stage)},
		SchemaUpdate: page,
	}, nil
}

// SubmitFeedbackHandler implements feedback.submit, a pure side effect: the
// result carries neither a schema update nor atomic actions, and the client
// changes nothing visually.
type SubmitFeedbackHandler struct {
	Sink FeedbackSink
}

func (h *SubmitFeedbackHandler) Name() string { return "feedback.submit" }

func (h *SubmitFeedbackHandler) PayloadSchema() string {
	return `{
	  "$schema": "https://json-schema.org/draft/2020-12/schema",
	  "type": "object",
	  "required": ["message"],
	  "properties": {
	    "message": {"type": "string", "minLength": 1}
	  }
	}`
}

func (h *SubmitFeedbackHandler) Execute(ctx context.Context, req *schema.ActionRequest) (*schema.ActionResult, error) {
	message, _ := req.Payload["message"].(string)
	if err := h.Sink.SubmitFeedback(ctx, req.Context.WorkspaceID, req.Context.UserID, message); err != nil {
		return nil, fmt.Errorf("submit feedback: %w", err)
	}
	return &schema.ActionResult{
		Success: true,
		Data:    map[string]any{"received": true},
	}, nil
}
