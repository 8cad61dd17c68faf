package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/TimBasler1996/Melora-sub001/internal/api"
	"github.com/TimBasler1996/Melora-sub001/internal/auth"
	"github.com/TimBasler1996/Melora-sub001/internal/config"
	"github.com/TimBasler1996/Melora-sub001/internal/docstore"
	"github.com/TimBasler1996/Melora-sub001/internal/feed"
	"github.com/TimBasler1996/Melora-sub001/internal/health"
	"github.com/TimBasler1996/Melora-sub001/internal/interaction"
	"github.com/TimBasler1996/Melora-sub001/internal/jobs"
	"github.com/TimBasler1996/Melora-sub001/internal/middleware"
	"github.com/TimBasler1996/Melora-sub001/internal/prefs"
	"github.com/TimBasler1996/Melora-sub001/internal/profile"
	"github.com/TimBasler1996/Melora-sub001/internal/stream"
	"github.com/TimBasler1996/Melora-sub001/internal/tracing"
)

const (
	serviceName     = "melora"
	shutdownTimeout = 10 * time.Second
)

// app is the wired daemon.
type app struct {
	logger   *slog.Logger
	server   *http.Server
	sync     *feed.Synchronizer
	tracer   *tracing.Provider
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

// newApp connects the configured backends and wires every component. The
// returned app owns the connections; run releases them.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.tracer, err = tracing.NewProvider(ctx, tracing.FromConfig(serviceName, cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	checkers := make(map[string]health.Checker)

	store, err := a.openStore(ctx, cfg, checkers)
	if err != nil {
		return nil, err
	}
	prefsStore, err := a.openPrefs(cfg, checkers)
	if err != nil {
		return nil, err
	}

	var session auth.Session = auth.StaticSession(cfg.UserID)
	if cfg.UsesSession() {
		session = auth.NewTokenSession(auth.NewSigner(cfg.SessionSecret, cfg.SessionSecretPrevious), cfg.SessionToken)
	}

	feedMetrics := feed.NewMetrics()
	profileMetrics := profile.NewMetrics()
	interactionMetrics := interaction.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	streamMetrics := stream.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	for _, r := range []interface {
		Register(prometheus.Registerer) error
	}{feedMetrics, profileMetrics, interactionMetrics, jobMetrics, streamMetrics, httpMetrics} {
		if err := r.Register(a.registry); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	cache := profile.NewCache(profile.NewDocumentFetcher(store), profile.Config{
		FetchTimeout:   cfg.ProfileFetchTimeout,
		MaxConcurrency: cfg.ProfileFetchParallel,
	}, logger, profileMetrics)
	prefsManager := prefs.NewManager(prefsStore, logger)

	a.sync = feed.NewSynchronizer(feed.Config{
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		Logger:       logger,
		Metrics:      feedMetrics,
		JobMetrics:   jobMetrics,
	}, store, session, prefsManager, cache)

	writers := interaction.NewDocumentWriters(store, logger)
	orchestrator := interaction.NewOrchestrator(interaction.Config{
		Logger:  logger,
		Metrics: interactionMetrics,
	}, session, prefsManager, interaction.Writers{Likes: writers, Events: writers, Chat: writers})

	checkers["feed"] = health.CheckerFunc(func(context.Context) error {
		if !a.sync.IsRunning() {
			return feed.ErrNotRunning
		}
		return a.sync.View().Err
	})

	mux := api.Router{
		Health:  api.NewHealthHandlers(checkers),
		Feed:    api.NewFeedHandlers(a.sync, stream.NewBroadcaster(a.sync, logger, streamMetrics)),
		Likes:   api.NewLikeHandlers(orchestrator, a.sync, cache, session),
		Metrics: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}),
	}.Handler()

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics
	handler := middleware.RequestID(
		middleware.Tracing(serviceName)(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(mux),
			),
		),
	)

	a.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		// Request contexts end with the daemon so websocket subscribers exit on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, checkers map[string]health.Checker) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		client, err := docstore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		checkers["store"] = health.NewMongoChecker(client)
		a.logger.Info("document store connected", "backend", cfg.StoreBackend, "database", cfg.MongoDatabase)
		return docstore.NewMongo(client.Database(cfg.MongoDatabase), a.logger), nil
	default:
		a.logger.Warn("using in-memory document store; data is lost on exit")
		return docstore.NewMemory(), nil
	}
}

func (a *app) openPrefs(cfg *config.Config, checkers map[string]health.Checker) (prefs.Store, error) {
	switch cfg.PrefsBackend {
	case config.PrefsSQLite:
		s, err := prefs.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		checkers["prefs"] = health.NewSQLChecker(s.DB())
		return s, nil
	case config.PrefsRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		checkers["prefs"] = health.NewRedisChecker(client)
		return prefs.NewRedisStore(client, ""), nil
	default:
		return prefs.NewMemoryStore(), nil
	}
}

// run starts the feed and serves HTTP until ctx is done, then shuts down
// gracefully and releases every connection.
func (a *app) run(ctx context.Context) error {
	if err := a.sync.Start(ctx); err != nil {
		a.close(context.Background())
		return fmt.Errorf("start feed: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.sync.Stop()
	a.close(shutdownCtx)
	return runErr
}

// close releases backends in reverse order of opening.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("failed to close backend", "error", err)
		}
	}
	a.closers = nil
	if a.tracer != nil && a.tracer.Enabled() {
		a.logger.Info("flushing spans")
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shut down tracing", "error", err)
		}
		a.tracer = nil
	}
}
