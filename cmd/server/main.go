package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"matrixhub/internal/config"
	"matrixhub/internal/handlers"
	"matrixhub/internal/hub"
	"matrixhub/internal/models"
	"matrixhub/internal/routers"
	"matrixhub/internal/state"
	"matrixhub/internal/store"
)

// pickStore selects the backing store at bootstrap: Redis when
// configured and reachable, then the file store, then memory. Every
// fallback is logged so a degraded deployment is visible.
func pickStore(cfg *config.Config, logger *zap.Logger) store.Store {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("REDIS_ADDR set but unreachable, falling back",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			logger.Info("using redis store", zap.String("addr", cfg.RedisAddr))
			return store.NewRedisStore(rdb, logger)
		}
	}

	if cfg.StateDir != "" {
		fs, err := store.NewFileStore(cfg.StateDir, logger)
		if err != nil {
			logger.Warn("STATE_DIR set but unusable, falling back",
				zap.String("dir", cfg.StateDir), zap.Error(err))
		} else {
			logger.Info("using file store", zap.String("dir", cfg.StateDir))
			return fs
		}
	}

	logger.Info("using in-memory store")
	return store.NewMemoryStore()
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.APIToken == "" {
		logger.Warn("no API_TOKEN configured, running in open mode")
	}

	st := pickStore(cfg, logger)

	h := hub.NewHub(logger)
	manager := state.NewManager(st, h, cfg, logger)
	h.SetSnapshot(func() interface{} {
		return models.NewStateMessage(manager.Current())
	})

	router := routers.New(handlers.New(manager, h, st, cfg, logger), cfg.CORSOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("matrixhub listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	h.Shutdown()

	if err := manager.SaveCurrent(shutdownCtx); err != nil {
		logger.Warn("final state save failed", zap.Error(err))
	}
}
