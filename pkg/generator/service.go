// Package generator orchestrates page generation: cache lookup, concurrent
// hydration, template selection and metadata stamping.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Blueprint-Labs/blueprint/core/pkg/cache"
	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
	"github.com/Blueprint-Labs/blueprint/core/pkg/telemetry"
	"github.com/Blueprint-Labs/blueprint/core/pkg/templates"
)

// DefaultTTL is the cache window for generated pages.
const DefaultTTL = 5 * time.Minute

// GenerateContext carries the per-request inputs that shape a page beyond
// the workspace id.
type GenerateContext struct {
	Stage         schema.LifecycleStage
	SessionID     string
	TraceID       string
	Priority      schema.Priority
	Confidence    *float64
	Accessibility *schema.AccessibilityProfile
}

// Config wires a Service.
type Config struct {
	Cache     cache.PageCache
	Hydrator  *hydrate.Hydrator
	Templates *templates.Registry
	Versions  VersionSource
	Recorder  telemetry.Recorder
	Logger    *slog.Logger
	TTL       time.Duration
	KeyPrefix string
	// WarmRate bounds batch warming, items per second. Zero means 4/s.
	WarmRate float64
}

// Service is the schema generation coordinator. It is safe for concurrent
// use across workspaces; the cache is the only shared mutable state.
type Service struct {
	cache     cache.PageCache
	hydrator  *hydrate.Hydrator
	templates *templates.Registry
	versions  VersionSource
	recorder  telemetry.Recorder
	logger    *slog.Logger
	ttl       time.Duration
	keyPrefix string
	warmLimit *rate.Limiter
	now       func() time.Time
}

// New validates the config and builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Cache == nil {
		return nil, errors.New("generator: cache is required")
	}
	if cfg.Hydrator == nil {
		return nil, errors.New("generator: hydrator is required")
	}
	if cfg.Templates == nil {
		return nil, errors.New("generator: template registry is required")
	}
	if cfg.Versions == nil {
		cfg.Versions = NewStaticVersionSource()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = telemetry.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "generator")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.WarmRate <= 0 {
		cfg.WarmRate = 4
	}
	return &Service{
		cache:     cfg.Cache,
		hydrator:  cfg.Hydrator,
		templates: cfg.Templates,
		versions:  cfg.Versions,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		warmLimit: rate.NewLimiter(rate.Limit(cfg.WarmRate), 1),
		now:       time.Now,
	}, nil
}

// Generate returns the page for a workspace, serving from cache within the
// TTL. Data-layer failures degrade to defaulted sections; only an
// unregistered stage (a configuration error) fails the call. Cache-store
// failures are treated as a permanent miss and never fail the request.
func (s *Service) Generate(ctx context.Context, workspaceID string, gctx GenerateContext) (*schema.PageDefinition, error) {
	spanID := uuid.NewString()
	s.recorder.StartSpan(spanID, telemetry.SpanGenerate)
	defer s.recorder.EndSpan(spanID, telemetry.SpanGenerate)

	key := s.keyFor(workspaceID)
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss",
			"workspace_id", workspaceID, "error", err)
		entry = nil
	}
	if entry != nil && entry.Fresh(s.now()) {
		// Cached metadata (including generatedAtEpochMs) is returned
		// untouched so callers can tell hits from fresh generations.
		s.recorder.RecordEvent(telemetry.Event{
			Kind:  telemetry.EventCacheHit,
			Attrs: map[string]any{"workspace_id": workspaceID, "version": key.Version},
		})
		return entry.Page, nil
	}

	s.recorder.RecordEvent(telemetry.Event{
		Kind:  telemetry.EventCacheMiss,
		Attrs: map[string]any{"workspace_id": workspaceID, "version": key.Version},
	})
	return s.generateFresh(ctx, workspaceID, key, gctx)
}

// generateFresh runs hydration and template rendering, then caches.
func (s *Service) generateFresh(ctx context.Context, workspaceID string, key cache.Key, gctx GenerateContext) (*schema.PageDefinition, error) {
	hydrateSpan := uuid.NewString()
	s.recorder.StartSpan(hydrateSpan, telemetry.SpanHydrate)
	bundle := s.hydrator.Hydrate(ctx, workspaceID)
	s.recorder.EndSpan(hydrateSpan, telemetry.SpanHydrate)

	page, err := s.templates.Generate(gctx.Stage, bundle)
	if err != nil {
		return nil, fmt.Errorf("generate page for workspace %q: %w", workspaceID, err)
	}
	s.stampMetadata(page, workspaceID, gctx)

	entry := &cache.Entry{
		Page:        page,
		CachedAt:    s.now().UnixMilli(),
		TTLMs:       s.ttl.Milliseconds(),
		WorkspaceID: workspaceID,
		Version:     key.Version,
	}
	if err := s.cache.Set(ctx, key, entry); err != nil {
		// A dead cache store degrades to uncached generation.
		s.logger.Warn("cache write failed",
			"workspace_id", workspaceID, "error", err)
	}
	return page, nil
}

func (s *Service) stampMetadata(page *schema.PageDefinition, workspaceID string, gctx GenerateContext) {
	page.Metadata.WorkspaceID = workspaceID
	page.Metadata.SessionID = gctx.SessionID
	page.Metadata.GeneratedAt = s.now().UnixMilli()
	page.Metadata.TelemetryEnabled = s.recorder.Enabled()
	page.Metadata.Confidence = gctx.Confidence
	page.Metadata.Accessibility = gctx.Accessibility
	if gctx.Priority != "" {
		page.Metadata.Priority = gctx.Priority
	}
	page.Metadata.TraceID = gctx.TraceID
	if page.Metadata.TraceID == "" {
		page.Metadata.TraceID = uuid.NewString()
	}
}

// Invalidate drops the cached page for a workspace at its current version.
// Used after actions that change what the page should show.
func (s *Service) Invalidate(ctx context.Context, workspaceID string) error {
	return s.cache.Delete(ctx, s.keyFor(workspaceID))
}

func (s *Service) keyFor(workspaceID string) cache.Key {
	return cache.Key{
		Prefix:      s.keyPrefix,
		WorkspaceID: workspaceID,
		Version:     s.versions.Current(workspaceID),
	}
}

// WarmReport summarizes a batch warm: which workspaces were cached and
// which failed, with the failure reason.
type WarmReport struct {
	Warmed []string          `json:"warmed"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Warm pre-generates and caches pages for a set of workspaces. Items are
// independent: one failure is recorded and the batch continues. The cache
// read is bypassed so warming always refreshes.
func (s *Service) Warm(ctx context.Context, workspaceIDs []string, gctx GenerateContext) *WarmReport {
	report := &WarmReport{Failed: make(map[string]string)}
	for _, id := range workspaceIDs {
		if err := s.warmLimit.Wait(ctx); err != nil {
			report.Failed[id] = fmt.Sprintf("warm canceled: %v", err)
			continue
		}
		if err := s.warmOne(ctx, id, gctx); err != nil {
			s.logger.Warn("warm failed", "workspace_id", id, "error", err)
			report.Failed[id] = err.Error()
			continue
		}
		report.Warmed = append(report.Warmed, id)
	}
	if len(report.Failed) == 0 {
		report.Failed = nil
	}
	return report
}

// warmOne contains per-item failures, including panics, so one bad
// workspace cannot abort the batch.
func (s *Service) warmOne(ctx context.Context, workspaceID string, gctx GenerateContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("warm panicked: %v", r)
		}
	}()
	_, err = s.generateFresh(ctx, workspaceID, s.keyFor(workspaceID), gctx)
	return err
}
