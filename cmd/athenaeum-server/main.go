// Package main is the entry point for the Athenaeum lending server.
// Athenaeum tracks a library's books, physical copies and patrons, and
// records every borrow and return in an append-only event log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/cache/memory"
	"github.com/athenaeum-io/athenaeum/internal/cache/redis"
	"github.com/athenaeum-io/athenaeum/internal/config"
	"github.com/athenaeum-io/athenaeum/internal/handler"
	"github.com/athenaeum-io/athenaeum/internal/metrics"
	"github.com/athenaeum-io/athenaeum/internal/repository"
	"github.com/athenaeum-io/athenaeum/internal/repository/postgres"
	"github.com/athenaeum-io/athenaeum/internal/repository/sqlite"
	"github.com/athenaeum-io/athenaeum/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting Athenaeum server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, db, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	cache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	clock := repository.SystemClock{}
	lendingSvc := service.NewLendingService(repos, cache, clock, m, logger)
	catalogSvc := service.NewCatalogService(repos, cache, clock, cfg.Lending.AvailabilityCacheTTL, logger)
	memberSvc := service.NewMemberService(repos.Users, logger)

	router := handler.NewRouter(handler.RouterConfig{
		CatalogHandler: handler.NewCatalogHandler(catalogSvc, logger),
		LendingHandler: handler.NewLendingHandler(lendingSvc, logger),
		MemberHandler:  handler.NewMemberHandler(memberSvc, catalogSvc, logger),
		Database:       db,
		Metrics:        m,
		MaxBodySize:    cfg.Server.MaxBodySize,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var metricsServer *http.Server
	if m != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info().Str("addr", metricsServer.Addr).Str("path", cfg.Metrics.Path).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("server stopped")
	return nil
}

// openStorage connects the configured database backend and runs
// migrations.
func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, repository.DatabaseHealth, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		dbCfg := sqlite.DefaultConfig(cfg.Database.Path)
		dbCfg.JournalMode = cfg.Database.JournalMode
		dbCfg.BusyTimeout = cfg.Database.BusyTimeout
		dbCfg.SynchronousMode = cfg.Database.SynchronousMode

		db, err := sqlite.NewDB(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlite.NewRepositories(db), db, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.NewRepositories(db), db, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// openCache connects Redis when enabled and falls back to the
// in-process cache otherwise.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.Cache, func(), error) {
	if cfg.Redis.Enabled {
		c, err := redis.NewCache(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis: %w", err)
		}
		return c, func() { _ = c.Close() }, nil
	}

	c := memory.NewCache()
	return c, c.Stop, nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
