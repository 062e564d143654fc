package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"htmlpng/internal/adapters/storage/localfs"
	"htmlpng/internal/config"
	"htmlpng/internal/engine"
	"htmlpng/internal/events"
	"htmlpng/internal/httpapi"
	"htmlpng/internal/httpapi/handlers"
	"htmlpng/internal/pkg/logger"
	"htmlpng/internal/pkg/shutdown"
	"htmlpng/internal/processor"
	"htmlpng/internal/repositories"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(cfg.LoggerConfig())

	undoMaxprocs, _ := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	log.Info("starting htmlpng API",
		"version", version,
	)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)
	shutdownMgr.RegisterSimple("maxprocs", undoMaxprocs)

	// Staging store
	store, err := localfs.New(cfg.StagingDir)
	if err != nil {
		log.LogFatal("staging directory unusable", err, "dir", cfg.StagingDir)
	}
	log.Info("staging directory ready", "dir", store.Root())

	var (
		recorders processor.Recorders
		history   handlers.History
		checks    []handlers.HealthCheck
	)

	// Optional render history
	if cfg.HistoryEnabled() {
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})
		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}

		repo := repositories.NewRenderRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to prepare render history", err)
		}
		log.Info("PostgreSQL connected, render history enabled")

		recorders = append(recorders, repo)
		history = repo
		checks = append(checks, handlers.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	// Optional render events
	if cfg.EventsEnabled() {
		log.Info("connecting to Redis")
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		log.Info("Redis connected, render events enabled", "key", cfg.EventsKey)

		publisher := events.NewRedisPublisher(rdb, cfg.EventsKey, events.DefaultMaxLen)
		recorders = append(recorders, publisher)
		if history == nil {
			history = publisher
		}
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	// Rendering engine, launched once and shared by all requests
	log.Info("launching headless browser")
	eng, err := engine.NewRodEngine(engine.RodConfig{
		BrowserBin:   cfg.BrowserBin,
		NoSandbox:    cfg.NoSandbox,
		Timeout:      cfg.RenderTimeout,
		AllowNetwork: cfg.AllowNetwork,
	})
	if err != nil {
		log.LogFatal("failed to start rendering engine", err)
	}
	shutdownMgr.Register("engine", func(ctx context.Context) error {
		return eng.Close()
	})
	log.Info("headless browser ready")

	checks = append([]handlers.HealthCheck{
		{Name: "engine", Check: eng.Ping},
		{Name: "staging", Check: store.Check},
	}, checks...)

	procDeps := processor.Deps{
		Engine:         eng,
		Store:          store,
		Log:            log,
		MaxDimension:   cfg.MaxDimension,
		KeepPartitions: cfg.KeepPartitions,
	}
	if len(recorders) > 0 {
		procDeps.Recorder = recorders
	}
	proc := processor.New(procDeps)

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Log:                log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Handlers: handlers.Deps{
			Renderer:     proc,
			History:      history,
			Checks:       checks,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Version:      version,
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RenderTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Registered last so it drains before the engine closes
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.Port,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}
