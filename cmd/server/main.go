package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"suljari"
	"suljari/internal/bus"
	"suljari/internal/catalog"
	"suljari/internal/config"
	"suljari/internal/handlers"
	"suljari/internal/room"
	"suljari/internal/scheduler"
	"suljari/internal/store"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		// The logger is built from the config, so this failure goes to stderr raw.
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cat, err := catalog.New(suljari.CatalogSeedJSON)
	if err != nil {
		log.Fatalw("embedded catalog seed is corrupt", "error", err)
	}

	st, closeStore, err := buildStore(cfg, log)
	if err != nil {
		log.Fatalw("state store unavailable", "error", err)
	}
	defer closeStore()

	b := bus.New(log)
	sched := scheduler.New(log)
	defer sched.Shutdown()

	rooms := room.NewRegistry(st, b, cfg.Game.RoomCodeLength, cfg.Game.MaxNicknameLen, log)
	h := handlers.New(cfg, log, st, b, sched, cat, rooms)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      handlers.SetupRouter(h, cfg, nil),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout, // 0 keeps SSE streams alive
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infow("server listening", "addr", addr, "categories", cat.Size())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
	log.Infow("server stopped")
}

// buildLogger maps the logLevel and logFormat settings onto a zap config.
func buildLogger(cfg *config.ServerConfig) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bad logLevel %q: %w", cfg.Server.LogLevel, err)
	}

	var zcfg zap.Config
	if cfg.Server.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// buildStore selects the state backend: redis when an address is configured,
// otherwise the in-process memory store. The redis path fails fast on an
// unreachable server.
func buildStore(cfg *config.ServerConfig, log *zap.SugaredLogger) (store.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Infow("using in-memory store", "roomTTL", cfg.Game.RoomTTL)
		mem := store.NewMemoryStore(cfg.Game.RoomTTL, log)
		return mem, mem.Close, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis at %s: %w", cfg.Redis.Addr, err)
	}

	log.Infow("using redis store", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return store.NewRedisStore(rdb, cfg.Game.RoomTTL, log), func() { _ = rdb.Close() }, nil
}
