package hydrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Blueprint-Labs/blueprint/core/pkg/telemetry"
)

// Sub-fetch names, used in logs and telemetry events.
const (
	FetchMetrics     = "metrics"
	FetchDiscoveries = "discoveries"
	FetchSystemMap   = "systemMap"
	FetchPersonas    = "personas"
	FetchKPITargets  = "kpiTargets"
	FetchRealization = "realization"
)

// Source provides the named fetch operations the hydrator aggregates. Every
// fetch is scoped to the caller-supplied workspace id; tenant isolation is
// enforced by the data layer behind this interface.
type Source interface {
	FetchMetrics(ctx context.Context, workspaceID string) (map[string]any, error)
	FetchDiscoveries(ctx context.Context, workspaceID string) ([]Discovery, error)
	FetchSystemMap(ctx context.Context, workspaceID string) (*SystemMap, error)
	FetchPersonas(ctx context.Context, workspaceID string) ([]Persona, error)
	FetchKPITargets(ctx context.Context, workspaceID string) ([]KPITarget, error)
	FetchRealization(ctx context.Context, workspaceID string) (*RealizationReport, error)
}

// Hydrator fans the named sub-fetches out concurrently and joins them into
// a bundle, substituting defaults per failed branch.
type Hydrator struct {
	source   Source
	timeout  time.Duration
	logger   *slog.Logger
	recorder telemetry.Recorder
}

// Option configures a Hydrator.
type Option func(*Hydrator)

// WithTimeout bounds each sub-fetch. Exceeding it counts as a failure for
// that branch only.
func WithTimeout(d time.Duration) Option {
	return func(h *Hydrator) { h.timeout = d }
}

// WithRecorder injects the telemetry recorder.
func WithRecorder(r telemetry.Recorder) Option {
	return func(h *Hydrator) { h.recorder = r }
}

// WithLogger injects a logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hydrator) { h.logger = l }
}

// New creates a hydrator over the given source.
func New(source Source, opts ...Option) *Hydrator {
	h := &Hydrator{
		source:   source,
		timeout:  3 * time.Second,
		logger:   slog.Default().With("component", "hydrator"),
		recorder: telemetry.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hydrate produces the bundle for one workspace. It never returns an error:
// each failed, panicked or timed-out branch is logged, counted in telemetry
// and replaced by its typed default.
func (h *Hydrator) Hydrate(ctx context.Context, workspaceID string) *Bundle {
	bundle := Default()

	var wg sync.WaitGroup
	branch := func(name string, work func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := work(); err != nil {
				h.logger.Warn("sub-fetch failed, using default",
					"workspace_id", workspaceID,
					"fetch", name,
					"error", err,
				)
				h.recorder.RecordEvent(telemetry.Event{
					Kind:  telemetry.EventFallback,
					Attrs: map[string]any{"workspace_id": workspaceID, "fetch": name},
				})
			}
		}()
	}

	// Each branch assigns exactly one bundle field, and only from inside
	// the joined goroutine, so no write can land after Hydrate returns.
	branch(FetchMetrics, func() error {
		v, err := fetchBounded(ctx, h.timeout, func(ctx context.Context) (map[string]any, error) {
			return h.source.FetchMetrics(ctx, workspaceID)
		})
		if err != nil {
			return err
		}
		if v != nil {
			bundle.Metrics = v
		}
		return nil
	})
	branch(FetchDiscoveries, func() error {
		v, err := fetchBounded(ctx, h.timeout, func(ctx context.Context) ([]Discovery, error) {
			return h.source.FetchDiscoveries(ctx, workspaceID)
		})
		if err != nil {
			return err
		}
		if v != nil {
			bundle.Discoveries = v
		}
		return nil
	})
	branch(FetchSystemMap, func() error {
		v, err := fetchBounded(ctx, h.timeout, func(ctx context.Context) (*SystemMap, error) {
			return h.source.FetchSystemMap(ctx, workspaceID)
		})
		if err != nil {
			return err
		}
		bundle.SystemMap = v
		return nil
	})
	branch(FetchPersonas, func() error {
		v, err := fetchBounded(ctx, h.timeout, func(ctx context.Context) ([]Persona, error) {
			return h.source.FetchPersonas(ctx, workspaceID)
		})
		if err != nil {
			return err
		}
		if v != nil {
			bundle.Personas = v
		}
		return nil
	})
	branch(FetchKPITargets, func() error {
		v, err := fetchBounded(ctx, h.timeout, func(ctx context.Context) ([]KPITarget, error) {
			return h.source.FetchKPITargets(ctx, workspaceID)
		})
		if err != nil {
			return err
		}
		if v != nil {
			bundle.KPITargets = v
		}
		return nil
	})
	branch(FetchRealization, func() error {
		v, err := fetchBounded(ctx, h.timeout, func(ctx context.Context) (*RealizationReport, error) {
			return h.source.FetchRealization(ctx, workspaceID)
		})
		if err != nil {
			return err
		}
		bundle.Realization = v
		return nil
	})

	wg.Wait()
	return bundle
}

type fetchResult[T any] struct {
	val T
	err error
}

// fetchBounded runs one fetch under a deadline and contains panics. On
// timeout the straggler goroutine is abandoned: its result goes to a
// buffered channel nobody reads, so it can never mutate the bundle.
func fetchBounded[T any](ctx context.Context, timeout time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	branchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan fetchResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fetchResult[T]{err: fmt.Errorf("sub-fetch panicked: %v", r)}
			}
		}()
		v, err := fetch(branchCtx)
		ch <- fetchResult[T]{val: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.val, res.err
	case <-branchCtx.Done():
		return zero, fmt.Errorf("sub-fetch timed out: %w", branchCtx.Err())
	}
}
