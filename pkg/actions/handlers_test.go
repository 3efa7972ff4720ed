package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blueprint-Labs/blueprint/core/pkg/cache"
	"github.com/Blueprint-Labs/blueprint/core/pkg/generator"
	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
	"github.com/Blueprint-Labs/blueprint/core/pkg/telemetry"
	"github.com/Blueprint-Labs/blueprint/core/pkg/templates"
)

func testSource() *hydrate.StaticSource {
	b := hydrate.Default()
	b.Metrics = map[string]any{"total": 5}
	b.Discoveries = []hydrate.Discovery{{ID: "d-1", Title: "first"}}
	b.Personas = []hydrate.Persona{{Name: "Dana", FitScore: 0.8}}
	b.KPITargets = []hydrate.KPITarget{{KPIID: "nps", TargetValue: 50}}
	return hydrate.NewStaticSource(*b)
}

func testGenerator(t *testing.T, src hydrate.Source) *generator.Service {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)

	c := cache.NewMemoryPageCache()
	t.Cleanup(c.Close)

	svc, err := generator.New(generator.Config{
		Cache:     c,
		Hydrator:  hydrate.New(src, hydrate.WithRecorder(telemetry.NewMemoryRecorder())),
		Templates: reg,
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestRefreshSection(t *testing.T) {
	src := testSource()
	router, err := NewBuilder().
		Register(&RefreshSectionHandler{Source: src}).
		Build()
	require.NoError(t, err)

	t.Run("metrics", func(t *testing.T) {
		res := router.Dispatch(context.Background(), request("section.refresh", map[string]any{"section": "metrics-overview"}))
		require.True(t, res.Success, res.Error)
		require.Len(t, res.AtomicActions, 1)

		act := res.AtomicActions[0]
		assert.Equal(t, schema.ActionMutate, act.Kind)
		assert.Equal(t, "metrics-overview", act.Target.Kind)
		require.Len(t, act.Operations, 1)
		assert.Equal(t, "metrics", act.Operations[0].Path)
		assert.Equal(t, map[string]any{"total": 5}, act.Operations[0].Value)
	})

	t.Run("discovery feed rebinds count too", func(t *testing.T) {
		res := router.Dispatch(context.Background(), request("section.refresh", map[string]any{"section": "discovery-feed"}))
		require.True(t, res.Success, res.Error)
		require.Len(t, res.AtomicActions, 1)
		require.Len(t, res.AtomicActions[0].Operations, 2)
		assert.Equal(t, "count", res.AtomicActions[0].Operations[1].Path)
		assert.Equal(t, 1, res.AtomicActions[0].Operations[1].Value)
	})

	t.Run("unlisted section rejected by schema", func(t *testing.T) {
		res := router.Dispatch(context.Background(), request("section.refresh", map[string]any{"section": "system-map"}))
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "invalid payload")
	})
}

func TestAdvanceStage(t *testing.T) {
	store := NewMemoryWorkspaceStore()
	gen := testGenerator(t, testSource())
	router, err := NewBuilder().
		Register(&AdvanceStageHandler{Generator: gen, Stages: store}).
		Build()
	require.NoError(t, err)

	t.Run("returns a full replacement page", func(t *testing.T) {
		res := router.Dispatch(context.Background(), request("stage.advance", map[string]any{"stage": "target"}))
		require.True(t, res.Success, res.Error)
		assert.Nil(t, res.AtomicActions)
		require.NotNil(t, res.SchemaUpdate)
		assert.Equal(t, schema.StageTarget, res.SchemaUpdate.Metadata.LifecycleStage)
		assert.Equal(t, "ws-1", res.SchemaUpdate.Metadata.WorkspaceID)
		assert.Equal(t, schema.StageTarget, store.Stage("ws-1"))
	})

	t.Run("invalid stage rejected by schema", func(t *testing.T) {
		res := router.Dispatch(context.Background(), request("stage.advance", map[string]any{"stage": "incubation"}))
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "invalid payload")
	})
}

func TestMemoryWorkspaceStore_Defaults(t *testing.T) {
	store := NewMemoryWorkspaceStore()
	assert.Equal(t, schema.StageOpportunity, store.Stage("ws-unseen"))
	assert.Empty(t, store.Discoveries("ws-unseen"))
	assert.Empty(t, store.Feedback("ws-unseen"))
}
