// Package app builds the long-lived services from configuration and runs them.
package app

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/snapshill/internal/api"
	"github.com/JakeFAU/snapshill/internal/archive"
	"github.com/JakeFAU/snapshill/internal/clock/system"
	"github.com/JakeFAU/snapshill/internal/config"
	"github.com/JakeFAU/snapshill/internal/dispatcher"
	"github.com/JakeFAU/snapshill/internal/header"
	"github.com/JakeFAU/snapshill/internal/policy/ratelimit"
	"github.com/JakeFAU/snapshill/internal/reddit"
	"github.com/JakeFAU/snapshill/internal/snapshot"
	"github.com/JakeFAU/snapshill/internal/store/memory"
	"github.com/JakeFAU/snapshill/internal/store/postgres"
	"github.com/JakeFAU/snapshill/internal/store/sqlite"
	"github.com/JakeFAU/snapshill/internal/telemetry"
	"github.com/JakeFAU/snapshill/internal/worker"
)

// App holds the services of one bot process.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      snapshot.Store
	closeStore func()
	tracer     *sdktrace.TracerProvider
	registry   *archive.Registry
	dispatcher *dispatcher.Dispatcher
	server     *api.Server
}

// New wires every component from cfg. Nothing talks to the network until Run.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	feed, err := reddit.New(ctx, reddit.Config{
		Username:          cfg.Reddit.Username,
		Password:          cfg.Reddit.Password,
		ClientID:          cfg.Reddit.ClientID,
		ClientSecret:      cfg.Reddit.ClientSecret,
		UserAgent:         cfg.Reddit.UserAgent,
		APIBase:           cfg.Reddit.APIBase,
		TokenURL:          cfg.Reddit.TokenURL,
		PermalinkBase:     cfg.Site.CanonicalBase,
		RequestsPerMinute: cfg.Reddit.RequestsPerMinute,
	}, logger.Named("reddit"))
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}

	normalizer, err := snapshot.NewNormalizer(cfg.Site.Domain, cfg.Site.CanonicalBase)
	if err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}

	registry, err := buildRegistry(cfg.Archive, logger.Named("archive"))
	if err != nil {
		return nil, err
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = "snapshill"
	}
	var spanLogger *zap.Logger
	if cfg.Telemetry.LogSpans {
		spanLogger = logger.Named("trace")
	}
	tp, err := telemetry.InitTracerProvider(ctx, serviceName, spanLogger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	store, pinger, closeStore, err := openStore(ctx, cfg.DB)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	headers := header.NewProvider(feed, feed, cfg.Bot.SettingsWiki, header.WithLogger(logger.Named("header")))

	w := worker.New(worker.Deps{
		Feed:    feed,
		Store:   store,
		Builder: snapshot.NewBuilder(normalizer, cfg.Render.TitleMaxLength),
		Renderer: snapshot.NewRenderer(snapshot.RenderConfig{
			Info:             cfg.Render.Info,
			Contact:          cfg.Render.Contact,
			EscapeMentionsIn: cfg.Render.EscapeMentionsIn,
		}),
		Backends: registry,
		Headers:  headers,
		Throttle: ratelimit.New(ratelimit.Config{Interval: cfg.Site.APIWait}),
	}, worker.Config{
		OverflowSubreddit: cfg.Bot.OverflowSubreddit,
		MaxCommentLength:  cfg.Render.MaxCommentLength,
		MaxOverflowLength: cfg.Render.MaxOverflowLength,
		WarnAfter:         cfg.Bot.WarnAfter,
		DryRun:            cfg.Bot.DryRun,
	}, logger.Named("worker"))

	d := dispatcher.New(feed, w, headers, dispatcher.Config{
		Limit:           cfg.Bot.Limit,
		Wait:            cfg.Bot.Wait,
		RefreshCycles:   cfg.Bot.RefreshCycles,
		PostConcurrency: cfg.Bot.PostConcurrency,
	}, logger.Named("dispatcher"))

	server := api.NewServer(api.Options{
		Loop:     d,
		Store:    pinger,
		Backends: registry.Names(),
		DryRun:   cfg.Bot.DryRun,
		Logger:   logger.Named("api"),
	})

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		closeStore: closeStore,
		tracer:     tp,
		registry:   registry,
		dispatcher: d,
		server:     server,
	}, nil
}

// Run polls until ctx is done, serving the ops endpoints alongside when a
// port is configured. A failed initial header load ends Run with an error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})
	if a.cfg.Server.Port > 0 {
		g.Go(func() error {
			return a.server.ListenAndServe(gctx, fmt.Sprintf(":%d", a.cfg.Server.Port))
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// RunOnce loads headers and processes a single window of posts.
func (a *App) RunOnce(ctx context.Context) error {
	if err := a.dispatcher.Start(ctx); err != nil {
		return err
	}
	return a.dispatcher.RunCycle(ctx)
}

// Store exposes the idempotency store.
func (a *App) Store() snapshot.Store {
	return a.store
}

// Close releases the store and flushes pending spans.
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func buildRegistry(cfg config.ArchiveConfig, logger *zap.Logger) (*archive.Registry, error) {
	client := archive.NewClient(archive.ClientConfig{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout})
	insecure := archive.NewClient(archive.ClientConfig{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout, InsecureSkipVerify: true})

	general := []snapshot.Archiver{
		archive.NewWayback(archive.WaybackConfig{}, client, system.New(), logger),
		archive.NewArchiveToday(archive.ArchiveTodayConfig{}, insecure, logger),
		archive.NewMegalodon(archive.MegalodonConfig{Enabled: cfg.MegalodonEnabled}, client,
			ratelimit.New(ratelimit.Config{Interval: cfg.MegalodonInterval}), logger),
	}
	mirrors := make([]snapshot.Archiver, 0, len(cfg.Mirrors))
	for _, key := range cfg.Mirrors {
		m, err := archive.NewMirror(key)
		if err != nil {
			return nil, fmt.Errorf("archive.mirrors: %w", err)
		}
		mirrors = append(mirrors, m)
	}
	return archive.NewRegistry(general, mirrors), nil
}

func openStore(ctx context.Context, cfg config.DBConfig) (snapshot.Store, api.Pinger, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil, nil, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, s, s.Close, nil
	default:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s, func() { _ = s.Close() }, nil
	}
}
