// Command blueprintd serves the server-driven UI core: page schema
// generation, action dispatch and the per-workspace update stream.
//
// This is the composition root: concrete stores and services are created
// here and injected into the packages that depend on their interfaces. No
// business logic lives in this file.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Blueprint-Labs/blueprint/core/pkg/actions"
	"github.com/Blueprint-Labs/blueprint/core/pkg/api"
	"github.com/Blueprint-Labs/blueprint/core/pkg/cache"
	"github.com/Blueprint-Labs/blueprint/core/pkg/config"
	"github.com/Blueprint-Labs/blueprint/core/pkg/generator"
	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/stream"
	"github.com/Blueprint-Labs/blueprint/core/pkg/telemetry"
	"github.com/Blueprint-Labs/blueprint/core/pkg/templates"
)

func main() {
	profilePath := flag.String("profile", "", "optional YAML config profile")
	flag.Parse()

	cfg := config.Load()
	if *profilePath != "" {
		if err := config.LoadProfile(*profilePath, cfg); err != nil {
			slog.Error("load profile failed", "error", err)
			os.Exit(1)
		}
	}
	setupLogging(cfg.LogLevel)
	logger := slog.Default().With("component", "blueprintd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, shutdownTelemetry := buildRecorder(ctx, cfg, logger)
	defer shutdownTelemetry()
	telemetry.SetDefault(recorder)

	pageCache := buildCache(ctx, cfg, logger)

	source, closeSource := buildSource(cfg, logger)
	defer closeSource()
	hydrator := hydrate.New(source,
		hydrate.WithTimeout(cfg.HydrateTimeout),
		hydrate.WithRecorder(recorder),
	)

	registry, err := templates.Builtin()
	if err != nil {
		logger.Error("build template registry failed", "error", err)
		os.Exit(1)
	}

	gen, err := generator.New(generator.Config{
		Cache:     pageCache,
		Hydrator:  hydrator,
		Templates: registry,
		Recorder:  recorder,
		TTL:       cfg.CacheTTL,
		KeyPrefix: cfg.CacheKeyPrefix,
		WarmRate:  cfg.WarmRatePerSec,
	})
	if err != nil {
		logger.Error("build generator failed", "error", err)
		os.Exit(1)
	}

	router, err := buildRouter(cfg, gen, source, recorder, logger)
	if err != nil {
		logger.Error("build action router failed", "error", err)
		os.Exit(1)
	}

	hub := stream.NewHub()
	defer hub.Close()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(gen, router, hub, recorder).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// buildRecorder picks the in-memory recorder, or the OTel bridge when an
// OTLP endpoint is configured.
func buildRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (telemetry.Recorder, func()) {
	if cfg.OTLPEndpoint == "" {
		r := telemetry.NewMemoryRecorder()
		r.SetEnabled(cfg.TelemetryEnabled)
		return r, func() {}
	}
	otelCfg := telemetry.DefaultOTelConfig()
	otelCfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := telemetry.NewProvider(ctx, otelCfg)
	if err != nil {
		logger.Warn("otel pipeline unavailable, using in-memory recorder", "error", err)
		r := telemetry.NewMemoryRecorder()
		r.SetEnabled(cfg.TelemetryEnabled)
		return r, func() {}
	}
	r := provider.Recorder()
	r.SetEnabled(cfg.TelemetryEnabled)
	return r, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}
}

// buildCache prefers Redis and falls back to in-process memory. A dead
// cache never blocks serving pages, so the fallback is safe.
func buildCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) cache.PageCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryPageCache()
	}
	redisCache, err := cache.NewRedisPageCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis cache unavailable, using memory cache", "error", err)
		return cache.NewMemoryPageCache()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, using memory cache", "addr", cfg.RedisAddr, "error", err)
		return cache.NewMemoryPageCache()
	}
	return redisCache
}

// buildSource connects the Postgres data layer, or serves demo data when
// no database is configured.
func buildSource(cfg *config.Config, logger *slog.Logger) (hydrate.Source, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("no database configured, serving demo bundle")
		return hydrate.NewStaticSource(demoBundle()), func() {}
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Warn("database open failed, serving demo bundle", "error", err)
		return hydrate.NewStaticSource(demoBundle()), func() {}
	}
	return hydrate.NewPostgresSource(db), func() { _ = db.Close() }
}

func buildRouter(cfg *config.Config, gen *generator.Service, source hydrate.Source, recorder telemetry.Recorder, logger *slog.Logger) (*actions.Router, error) {
	opts := []actions.RouterOption{actions.WithRecorder(recorder)}

	db, err := sql.Open("sqlite", cfg.ReceiptDBPath)
	if err != nil {
		logger.Warn("receipt store unavailable", "error", err)
	} else if receipts, err := actions.NewSQLiteReceiptStore(db); err != nil {
		logger.Warn("receipt store migration failed", "error", err)
	} else {
		opts = append(opts, actions.WithReceipts(receipts))
	}

	store := actions.NewMemoryWorkspaceStore()
	return actions.NewBuilder().
		Register(&actions.CreateDiscoveryHandler{Store: store}).
		Register(&actions.RefreshSectionHandler{Source: source}).
		Register(&actions.AdvanceStageHandler{Generator: gen, Stages: store}).
		Register(&actions.SubmitFeedbackHandler{Sink: store}).
		Build(opts...)
}

func demoBundle() hydrate.Bundle {
	return hydrate.Bundle{
		Metrics: map[string]any{
			"total":        5.0,
			"activeUsers":  128.0,
			"timeSavedHrs": 42.5,
		},
		Discoveries: []hydrate.Discovery{
			{
				ID:         "demo-discovery-1",
				Title:      "Manual reporting eats two days a week",
				Summary:    "Ops team rebuilds the same spreadsheet every Monday.",
				Source:     "discovery call",
				CapturedAt: time.Now().Add(-48 * time.Hour).UnixMilli(),
			},
		},
		Personas: []hydrate.Persona{
			{Name: "Operations Manager", Role: "economic buyer", FitScore: 0.8},
		},
		KPITargets: []hydrate.KPITarget{
			{KPIID: "time-saved", TargetValue: 20, Unit: "hours/week"},
		},
	}
}
