package generator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blueprint-Labs/blueprint/core/pkg/cache"
	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
	"github.com/Blueprint-Labs/blueprint/core/pkg/telemetry"
	"github.com/Blueprint-Labs/blueprint/core/pkg/templates"
)

// stubCache stores entries verbatim and leaves freshness to the service.
type stubCache struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry
	sets    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]*cache.Entry)}
}

func (c *stubCache) Get(_ context.Context, key cache.Key) (*cache.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key.String()], nil
}

func (c *stubCache) Set(_ context.Context, key cache.Key, entry *cache.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = entry
	c.sets++
	return nil
}

func (c *stubCache) Delete(_ context.Context, key cache.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
	return nil
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Get(context.Context, cache.Key) (*cache.Entry, error) {
	return nil, errors.New("cache store unreachable")
}
func (brokenCache) Set(context.Context, cache.Key, *cache.Entry) error {
	return errors.New("cache store unreachable")
}
func (brokenCache) Delete(context.Context, cache.Key) error {
	return errors.New("cache store unreachable")
}

// countingSource serves per-workspace metrics and counts hydrations.
type countingSource struct {
	*hydrate.StaticSource
	metricsCalls atomic.Int64
}

func newCountingSource() *countingSource {
	b := hydrate.Default()
	b.Metrics = map[string]any{"total": 5}
	return &countingSource{StaticSource: hydrate.NewStaticSource(*b)}
}

func (c *countingSource) FetchMetrics(ctx context.Context, workspaceID string) (map[string]any, error) {
	c.metricsCalls.Add(1)
	if workspaceID == "ws-bad" {
		return map[string]any{"boom": true}, nil
	}
	return c.StaticSource.FetchMetrics(ctx, workspaceID)
}

type fixture struct {
	svc      *Service
	cache    *stubCache
	source   *countingSource
	recorder *telemetry.MemoryRecorder
	versions *StaticVersionSource
	now      *time.Time
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)

	f := &fixture{
		cache:    newStubCache(),
		source:   newCountingSource(),
		recorder: telemetry.NewMemoryRecorder(),
		versions: NewStaticVersionSource(),
	}
	cfg := Config{
		Cache:     f.cache,
		Hydrator:  hydrate.New(f.source, hydrate.WithRecorder(f.recorder)),
		Templates: reg,
		Versions:  f.versions,
		Recorder:  f.recorder,
		TTL:       5 * time.Minute,
		WarmRate:  1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.svc, err = New(cfg)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	f.now = &now
	f.svc.now = func() time.Time { return now }
	return f
}

func eventKinds(r *telemetry.MemoryRecorder) []string {
	events := r.Events()
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestGenerate_CacheHitWithinTTL(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	gctx := GenerateContext{Stage: schema.StageOpportunity}

	first, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.source.metricsCalls.Load())

	*f.now = f.now.Add(time.Minute)
	second, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)

	// No re-hydration, and the cached metadata comes back untouched.
	assert.EqualValues(t, 1, f.source.metricsCalls.Load())
	assert.Equal(t, first.Metadata.GeneratedAt, second.Metadata.GeneratedAt)
	assert.Equal(t, first.Sections, second.Sections)
	assert.Equal(t,
		[]string{telemetry.EventCacheMiss, telemetry.EventCacheHit},
		eventKinds(f.recorder))
}

func TestGenerate_TTLExpiryRegenerates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	gctx := GenerateContext{Stage: schema.StageOpportunity}

	first, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)

	*f.now = f.now.Add(6 * time.Minute)
	second, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.source.metricsCalls.Load())
	assert.Greater(t, second.Metadata.GeneratedAt, first.Metadata.GeneratedAt)
}

func TestGenerate_VersionBumpInvalidates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	gctx := GenerateContext{Stage: schema.StageOpportunity}

	_, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.source.metricsCalls.Load())

	f.versions.Bump("ws-1")
	_, err = f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.source.metricsCalls.Load())
}

func TestGenerate_InvalidateForcesRegeneration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	gctx := GenerateContext{Stage: schema.StageOpportunity}

	_, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.Invalidate(ctx, "ws-1"))

	_, err = f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.source.metricsCalls.Load())
}

func TestGenerate_BrokenCacheDegradesToMiss(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.Cache = brokenCache{} })
	ctx := context.Background()
	gctx := GenerateContext{Stage: schema.StageOpportunity}

	first, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NoError(t, schema.ValidatePage(first))

	_, err = f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.source.metricsCalls.Load())
}

func TestGenerate_DegradedBundleStillValidates(t *testing.T) {
	f := newFixture(t, nil)
	f.source.FailWith(hydrate.FetchPersonas, errors.New("persona service down"))
	f.source.FailWith(hydrate.FetchDiscoveries, errors.New("store down"))

	page, err := f.svc.Generate(context.Background(), "ws-1", GenerateContext{Stage: schema.StageOpportunity})
	require.NoError(t, err)
	assert.NoError(t, schema.ValidatePage(page))

	// The healthy branch still renders its real data.
	metrics := page.Sections[0].Props["metrics"].(map[string]any)
	assert.Equal(t, 5, metrics["total"])
}

func TestGenerate_UnknownStageFails(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Generate(context.Background(), "ws-1", GenerateContext{Stage: "incubation"})
	require.Error(t, err)
	assert.ErrorIs(t, err, templates.ErrUnknownStage)
	assert.Zero(t, f.cache.sets)
}

func TestGenerate_OpportunityPage(t *testing.T) {
	f := newFixture(t, nil)
	conf := 0.9
	page, err := f.svc.Generate(context.Background(), "ws-1", GenerateContext{
		Stage:      schema.StageOpportunity,
		SessionID:  "sess-1",
		TraceID:    "trace-1",
		Confidence: &conf,
	})
	require.NoError(t, err)
	require.NoError(t, schema.ValidatePage(page))

	assert.Equal(t, schema.PageType, page.Type)
	assert.Equal(t, "ws-1", page.Metadata.WorkspaceID)
	assert.Equal(t, "sess-1", page.Metadata.SessionID)
	assert.Equal(t, "trace-1", page.Metadata.TraceID)
	assert.Equal(t, schema.StageOpportunity, page.Metadata.LifecycleStage)
	assert.Equal(t, schema.PriorityNormal, page.Metadata.Priority)
	require.NotNil(t, page.Metadata.Confidence)
	assert.Equal(t, 0.9, *page.Metadata.Confidence)
	assert.True(t, page.Metadata.TelemetryEnabled)

	// The metrics bundle lands in the overview props; no system is mapped,
	// so no system-map section renders.
	require.NotEmpty(t, page.Sections)
	assert.Equal(t, templates.KindMetricsOverview, page.Sections[0].Kind)
	metrics := page.Sections[0].Props["metrics"].(map[string]any)
	assert.Equal(t, 5, metrics["total"])
	for _, s := range page.Sections {
		assert.NotEqual(t, templates.KindSystemMap, s.Kind)
	}
}

func TestGenerate_StampsTraceIDWhenMissing(t *testing.T) {
	f := newFixture(t, nil)
	page, err := f.svc.Generate(context.Background(), "ws-1", GenerateContext{Stage: schema.StageOpportunity})
	require.NoError(t, err)
	assert.NotEmpty(t, page.Metadata.TraceID)
}

func TestWarm_BatchIsolation(t *testing.T) {
	// A template that blows up on one workspace's data proves a bad item
	// cannot take the batch down.
	reg, err := templates.NewBuilder().
		Register(templates.Template{
			Stage:         schema.StageOpportunity,
			SchemaVersion: 1,
			Sections: []templates.SectionSpec{{
				Kind: templates.KindMetricsOverview,
				Props: func(b *hydrate.Bundle) map[string]any {
					if boom, _ := b.Metrics["boom"].(bool); boom {
						panic("template exploded")
					}
					return map[string]any{"metrics": b.Metrics}
				},
			}},
		}).
		Build()
	require.NoError(t, err)

	f := newFixture(t, func(cfg *Config) { cfg.Templates = reg })
	gctx := GenerateContext{Stage: schema.StageOpportunity}

	report := f.svc.Warm(context.Background(), []string{"ws-a", "ws-bad", "ws-c"}, gctx)

	assert.Equal(t, []string{"ws-a", "ws-c"}, report.Warmed)
	require.Contains(t, report.Failed, "ws-bad")
	assert.Contains(t, report.Failed["ws-bad"], "panicked")
	assert.Equal(t, 2, f.cache.sets)
}

func TestWarm_BypassesCacheRead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	gctx := GenerateContext{Stage: schema.StageOpportunity}

	f.svc.Warm(ctx, []string{"ws-1"}, gctx)
	f.svc.Warm(ctx, []string{"ws-1"}, gctx)

	// Warming always regenerates, even with a fresh entry cached.
	assert.EqualValues(t, 2, f.source.metricsCalls.Load())
	assert.Equal(t, 2, f.cache.sets)

	// A subsequent read is served from the warmed entry.
	_, err := f.svc.Generate(ctx, "ws-1", gctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.source.metricsCalls.Load())
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	reg, err := templates.Builtin()
	require.NoError(t, err)
	h := hydrate.New(newCountingSource())

	_, err = New(Config{Hydrator: h, Templates: reg})
	assert.Error(t, err)
	_, err = New(Config{Cache: newStubCache(), Templates: reg})
	assert.Error(t, err)
	_, err = New(Config{Cache: newStubCache(), Hydrator: h})
	assert.Error(t, err)
}
