// Package server wires the authentication core together and runs it: the
// gRPC server, the metrics endpoint and the session sweeper, all stopped by
// a shared context on SIGINT, SIGTERM or SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
	"github.com/ttm0z/stock-analyzer-sub001/internal/metrics"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/auth"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/cache"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/config"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/repomanager"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/services"

	gs "github.com/ttm0z/stock-analyzer-sub001/internal/server/grpc"
)

// startupMaxElapsed bounds how long NewApp keeps retrying the backing stores.
const startupMaxElapsed = 30 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	registry *prometheus.Registry

	authenticator *services.Authenticator
	sweeper       *services.Sweeper
	registrars    []gs.ServiceRegistrar

	Tokens   *auth.TokenService
	APIKeys  *services.APIKeyManager
	Sessions *services.SessionManager
	Users    *services.UserService
}

// retry runs op with exponential backoff until it succeeds, ctx ends or
// maxElapsed passes.
func retry(ctx context.Context, logger logging.Logger, name string, maxElapsed time.Duration, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(
		func() error { return op(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logger.Warn(ctx, "backing store not ready, retrying", "store", name, "error", err.Error(), "next", next.String())
		},
	)
}

// NewApp connects the backing stores and builds the services. The gRPC
// server itself only serves health checks; application services are
// attached through registrars and run behind the authentication
// interceptors.
func NewApp(ctx context.Context, c *config.Config, registrars ...gs.ServiceRegistrar) (*App, error) {

	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := retry(ctx, logger, "postgres", startupMaxElapsed, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	client, err := cache.NewClient(c.RedisURL, c.CacheTimeout)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache init error: %w", err)
	}
	sessionCache := cache.NewRedisCache(client, c.CacheTimeout)
	if err := retry(ctx, logger, "redis", startupMaxElapsed, sessionCache.Ping); err != nil {
		_ = client.Close()
		_ = db.Close()
		return nil, fmt.Errorf("cache ping error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	tokens := auth.NewTokenService(c, sessionCache, logger)
	keys := services.NewAPIKeyManager(db, rm, c, logger)
	sessions := services.NewSessionManager(db, rm, sessionCache, c, logger, recorder)
	users := services.NewUserService(db, rm, tokens, sessions, c, logger)

	return &App{
		config:        c,
		logger:        logger,
		db:            db,
		redis:         client,
		registry:      registry,
		authenticator: services.NewAuthenticator(tokens, keys, sessions, recorder, logger),
		sweeper:       services.NewSweeper(sessions, c.SweepInterval, logger),
		registrars:    registrars,
		Tokens:        tokens,
		APIKeys:       keys,
		Sessions:      sessions,
		Users:         users,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authenticator, app.registrars...)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(app.registry))
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close(ctx context.Context) {
	if err := app.redis.Close(); err != nil {
		app.logger.Warn(ctx, "closing redis client", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "closing database", "error", err.Error())
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}
