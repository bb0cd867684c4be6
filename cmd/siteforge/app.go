package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/siteforge/internal/assets"
	"git.home.luguber.info/inful/siteforge/internal/cache"
	"git.home.luguber.info/inful/siteforge/internal/config"
	"git.home.luguber.info/inful/siteforge/internal/deploy"
	"git.home.luguber.info/inful/siteforge/internal/events"
	"git.home.luguber.info/inful/siteforge/internal/manifest"
	"git.home.luguber.info/inful/siteforge/internal/metrics"
	"git.home.luguber.info/inful/siteforge/internal/pipeline"
	"git.home.luguber.info/inful/siteforge/internal/preview"
	"git.home.luguber.info/inful/siteforge/internal/state"
)

// environmentAliases maps CLI shorthand to configured environment names.
var environmentAliases = map[string]string{
	"dev":  "development",
	"prod": "production",
}

// app wires the registry, scheduler, cache, events, metrics and deployer
// for one process invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prom.Registry
	recorder  metrics.Recorder
	publisher events.Publisher
	scheduler *pipeline.Scheduler
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		publisher = p
	}

	reg := pipeline.NewRegistry()
	transforms := assets.NewTransforms().WithLogger(logger).WithMetrics(recorder)
	if err := assets.RegisterDefaults(reg, transforms); err != nil {
		return nil, err
	}

	scheduler := pipeline.NewScheduler(reg).
		WithLogger(logger).
		WithMetrics(recorder).
		WithEvents(publisher)
	for _, def := range assets.DefaultPipelines() {
		if err := scheduler.Define(def); err != nil {
			return nil, err
		}
	}
	if err := scheduler.Validate(); err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		recorder:  recorder,
		publisher: publisher,
		scheduler: scheduler,
	}, nil
}

func (a *app) close() {
	_ = a.publisher.Close()
}

// runPipeline executes one named pipeline against a fresh build state.
func (a *app) runPipeline(ctx context.Context, name string) (*pipeline.BuildState, error) {
	store, err := a.openCacheStore()
	if err != nil {
		return nil, err
	}

	bs := pipeline.NewBuildState(uuid.NewString(), a.cfg.Source, a.cfg.Output)
	bs.CacheID = a.cfg.Project.CacheID
	bs.ManifestDisabled = a.cfg.Manifest.Disabled
	bs.Changes = cache.New(store).WithLogger(a.logger)
	defer func() { _ = bs.Changes.Close() }()

	if _, err := a.scheduler.Run(ctx, name, bs); err != nil {
		return nil, err
	}
	return bs, nil
}

// openCacheStore returns the persistent digest store when configured, and a
// per-run in-memory one otherwise.
func (a *app) openCacheStore() (cache.Store, error) {
	if a.cfg.Cache.PersistPath == "" {
		return cache.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.Cache.PersistPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return cache.NewSQLiteStore(a.cfg.Cache.PersistPath)
}

func (a *app) build(ctx context.Context) error {
	_, err := a.runPipeline(ctx, "default")
	return err
}

func (a *app) clean() error {
	if err := os.RemoveAll(a.cfg.Output); err != nil {
		return fmt.Errorf("remove output directory: %w", err)
	}
	a.logger.Info("Output directory removed", "dir", a.cfg.Output)
	return nil
}

func (a *app) serve(ctx context.Context, listenOverride string) error {
	listen := a.cfg.Serve.Listen
	if listenOverride != "" {
		listen = listenOverride
	}
	interval, err := a.cfg.Serve.RebuildEvery()
	if err != nil {
		return err
	}

	server := preview.NewServer(listen, a.cfg.Source, a.cfg.Output, func(ctx context.Context) error {
		return a.build(ctx)
	}).WithLogger(a.logger)
	if interval > 0 {
		server = server.WithRebuildInterval(interval)
	}
	if a.cfg.Metrics.Listen != "" {
		handler := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
		server = server.WithMetricsListen(a.cfg.Metrics.Listen, handler)
	}
	return server.Run(ctx)
}

// deploy runs the pre-deploy pipeline (default plus revisioning) and then
// publishes the artifact tree. Real environments always get a fresh
// completed run; only promote skips building.
func (a *app) deploy(ctx context.Context, environment string) error {
	if canonical, ok := environmentAliases[environment]; ok {
		environment = canonical
	}

	bs, err := a.runPipeline(ctx, "pre-deploy")
	if err != nil {
		return err
	}

	fingerprint := ""
	if m, err := manifest.Load(a.cfg.Output); err == nil {
		fingerprint = m.PrecacheFingerprint
	}

	deployer, err := a.newDeployer()
	if err != nil {
		return err
	}
	result, err := deployer.Deploy(ctx, environment, a.cfg.Output, bs.BuildID, fingerprint)
	if err != nil {
		return err
	}
	_ = a.publisher.Publish(events.Event{Type: events.EventDeployed, BuildID: result.BuildID, Environment: environment})
	a.logger.Info("Deployed",
		"environment", result.Environment,
		"build_id", result.BuildID,
		"files", result.Files)
	return nil
}

// promote copies published state between environments without building.
func (a *app) promote(ctx context.Context, from, to string) error {
	if canonical, ok := environmentAliases[from]; ok {
		from = canonical
	}
	if canonical, ok := environmentAliases[to]; ok {
		to = canonical
	}

	deployer, err := a.newDeployer()
	if err != nil {
		return err
	}
	result, err := deployer.Promote(ctx, from, to)
	if err != nil {
		return err
	}
	_ = a.publisher.Publish(events.Event{Type: events.EventDeployed, BuildID: result.BuildID, Environment: to})
	a.logger.Info("Promoted",
		"source", from,
		"target", to,
		"build_id", result.BuildID,
		"files", result.Files)
	return nil
}

func (a *app) newDeployer() (*deploy.Deployer, error) {
	store, err := state.NewStore(a.cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return deploy.New(a.cfg.DeployEnvironments(), store).
		WithLogger(a.logger).
		WithMetrics(a.recorder), nil
}
