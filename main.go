package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xerud2002/Dos/config"
	"github.com/xerud2002/Dos/internal/catalog"
	"github.com/xerud2002/Dos/internal/handler"
	"github.com/xerud2002/Dos/internal/limiter"
	"github.com/xerud2002/Dos/internal/middleware"
	"github.com/xerud2002/Dos/internal/storage/memory"
	"github.com/xerud2002/Dos/internal/storage/postgres"
	"github.com/xerud2002/Dos/internal/storage/redis"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := initStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "type", cfg.Storage.Type, "error", err)
		log.Fatal(err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	windows := memory.NewMemoryStore(memory.WithIdleFactor(cfg.Limiter.IdleFactor))
	windows.StartJanitor(ctx, cfg.Limiter.SweepInterval, func(removed int) {
		logger.Debug("swept idle rate windows", "removed", removed, "live", windows.Len())
	})

	l := limiter.NewLimiter(windows, cfg.Limiter.Policies)
	for name, p := range cfg.Limiter.Policies {
		logger.Info("rate policy", "class", name, "points", p.Points, "duration", p.Duration)
	}
	fallback, fp := l.Policy(l.Fallback())
	logger.Info("unknown classes fall back", "class", fallback, "points", fp.Points, "duration", fp.Duration)

	rateLimitMW := middleware.NewRateLimitMiddleware(l, logger)
	svc := catalog.NewService(repo, logger)
	router := handler.NewRouter(handler.NewHandler(svc, logger), rateLimitMW)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			log.Fatal(err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
}

func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Repository, error) {
	switch cfg.Storage.Type {
	case config.StorageRedis:
		return initRedisStorage(ctx, cfg.Redis, logger)
	case config.StoragePostgres:
		logger.Info("connecting to Postgres")
		store, err := postgres.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("successfully connected to Postgres")
		return store, nil
	case config.StorageMemory:
		logger.Info("using in-memory storage")
		return memory.NewCatalogStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func initRedisStorage(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (catalog.Repository, error) {
	logger.Info("connecting to Redis", "addr", cfg.Addr)
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("successfully connected to Redis")
	return redis.NewRedisStore(rdb), nil
}
