package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	sfhttp "github.com/Strob0t/StratForge/internal/adapter/http"
	"github.com/Strob0t/StratForge/internal/adapter/litellm"
	sfnats "github.com/Strob0t/StratForge/internal/adapter/nats"
	"github.com/Strob0t/StratForge/internal/adapter/natskv"
	sfotel "github.com/Strob0t/StratForge/internal/adapter/otel"
	"github.com/Strob0t/StratForge/internal/adapter/postgres"
	"github.com/Strob0t/StratForge/internal/adapter/ristretto"
	"github.com/Strob0t/StratForge/internal/adapter/tiered"
	"github.com/Strob0t/StratForge/internal/adapter/ws"
	"github.com/Strob0t/StratForge/internal/config"
	"github.com/Strob0t/StratForge/internal/domain/content"
	"github.com/Strob0t/StratForge/internal/logger"
	"github.com/Strob0t/StratForge/internal/middleware"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
	"github.com/Strob0t/StratForge/internal/resilience"
	"github.com/Strob0t/StratForge/internal/service"
)

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func dispatch(args []string) error {
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return runServe(args)
	case "migrate":
		return runMigrate(args)
	case "schema":
		return runSchema(args)
	case "upgrade":
		return runUpgrade(args)
	case "scores":
		return runScores(args)
	case "help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printHelp() {
	fmt.Fprint(os.Stderr, `Usage: stratforge <command> [options]

Commands:
  serve                              Run the HTTP API and queue consumers (default)
  migrate [up|down|version]          Manage database migrations
  schema import <file.yaml>          Replace the interview variable catalog
  upgrade --strategy ID --actor ID   Run a schema upgrade and regenerate all pillars
  scores --strategy ID               Recalculate coherence, risk and BMF scores

Global options:
  -c, --config PATH                  YAML config file (default stratforge.yaml)
`)
}

func runServe(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logCloser := setupLogger(cfg)
	defer logCloser.Close()

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_concurrent_runs", cfg.Pipeline.MaxConcurrentRuns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer app.close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	cancelScores, err := app.scores.StartRecomputeSubscriber(ctx, app.queue)
	if err != nil {
		return fmt.Errorf("score subscriber: %w", err)
	}
	defer cancelScores()

	var logDrops func() int64
	if ah, ok := logCloser.(*logger.AsyncHandler); ok {
		logDrops = ah.DroppedCount
	}
	gauges, err := sfotel.RegisterRuntimeGauges(app.hub.ConnectionCount, logDrops)
	if err != nil {
		return fmt.Errorf("runtime gauges: %w", err)
	}
	defer func() { _ = gauges.Unregister() }()

	// --- HTTP ---
	opts := sfhttp.RouterOptions{
		CORSOrigin: cfg.Server.CORSOrigin,
		Telemetry:  sfotel.HTTPMiddleware(cfg.OTel.ServiceName),
		WebSocket:  app.hub.HandleWS,
	}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)
		opts.RateLimit = limiter.Handler
	}
	idemKV, err := app.queue.KeyValue(ctx, cfg.Server.IdempotencyBucket, cfg.Server.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}
	opts.Idempotency = middleware.Idempotency(natskv.New(idemKV), cfg.Server.IdempotencyTTL)

	handlers := &sfhttp.Handlers{
		Strategies:  app.strategies,
		Upgrades:    app.upgrades,
		Regenerator: app.regen,
		Scores:      app.scores,
		Catalog:     app.schema,
		Health: sfhttp.HealthDeps{
			Postgres:      app.store,
			NATS:          app.queue,
			LiteLLM:       app.llm,
			WSConnections: app.hub.ConnectionCount,
		},
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           sfhttp.NewRouter(handlers, opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Upgrades run synchronously through eight generator calls.
		WriteTimeout: 8*cfg.LiteLLM.Timeout + time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	app.hub.Close()
	app.dispatcher.Wait()
	if err := app.queue.Drain(); err != nil {
		slog.Warn("nats drain failed", "error", err)
	}
	if err := app.shutdownOTel(shutdownCtx); err != nil {
		slog.Warn("otel shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func setupLogger(cfg *config.Config) logger.Closer {
	l, closer := logger.New(cfg.Logging)
	slog.SetDefault(l)
	return closer
}

// app holds the wired services shared by serve and the one-shot commands.
type app struct {
	cfg          *config.Config
	store        *postgres.Store
	queue        *sfnats.Queue
	llm          *litellm.Client
	hub          *ws.Hub
	dispatcher   *service.Dispatcher
	schema       *service.SchemaService
	strategies   *service.StrategyService
	scores       *service.ScoreService
	regen        *service.RegenerationService
	upgrades     *service.UpgradeService
	shutdownOTel sfotel.ShutdownFunc
	closers      []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp connects infrastructure and wires the services. withTelemetry
// starts the OTLP exporters; the one-shot commands run without them.
func buildApp(ctx context.Context, cfg *config.Config, withTelemetry bool) (*app, error) {
	a := &app{cfg: cfg, shutdownOTel: func(context.Context) error { return nil }}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if withTelemetry {
		shutdown, err := sfotel.Setup(ctx, cfg.OTel)
		if err != nil {
			return nil, fmt.Errorf("otel: %w", err)
		}
		a.shutdownOTel = shutdown
	}
	metrics, err := sfotel.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.store = postgres.NewStore(pool)
	slog.Info("postgres connected")

	a.queue, err = sfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.queue.Close() })

	// --- Cache: ristretto L1 over JetStream KV L2 ---
	l1, err := ristretto.NewMB(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.closers = append(a.closers, l1.Close)
	kv, err := a.queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return nil, fmt.Errorf("l2 cache: %w", err)
	}
	catalogCache := tiered.New(l1, natskv.New(kv), cfg.Cache.SchemaTTL)

	// --- Generator ---
	a.llm = litellm.NewClient(cfg.LiteLLM)
	a.llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithFailurePredicate(litellm.IsTransient)))

	// --- Services ---
	a.hub = ws.NewHub(originHosts(cfg.Server.CORSOrigin)...)
	a.dispatcher = service.NewDispatcher(cfg.Pipeline.BackgroundWorkers, metrics)
	a.closers = append(a.closers, a.dispatcher.Close)

	a.schema = service.NewSchemaService(a.store, catalogCache, cfg.Cache.SchemaTTL)
	a.strategies = service.NewStrategyService(a.store)
	a.scores = service.NewScoreService(a.store, content.NewParser(), a.schema, a.hub, metrics)
	a.regen = service.NewRegenerationService(a.store, a.llm, a.hub, a.dispatcher, a.scores, metrics)
	a.regen.SetRecomputers(
		sfnats.NewRecomputer(a.queue, messagequeue.SubjectBudgetRecompute, "pipeline"),
		sfnats.NewRecomputer(a.queue, messagequeue.SubjectWidgetsRecompute, "pipeline"),
	)
	a.upgrades = service.NewUpgradeService(a.store, a.schema, a.llm, a.regen, a.hub, a.queue,
		cfg.Pipeline.MaxConcurrentRuns, metrics)

	ok = true
	return a, nil
}

// originHosts returns the host of the dashboard origin for the WebSocket
// origin check. An unparsable origin allows same-origin only.
func originHosts(origin string) []string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
