package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"pharmasys/internal/cache"
	"pharmasys/internal/config"
	"pharmasys/internal/httpapi"
	"pharmasys/internal/logx"
	"pharmasys/internal/metrics"
	"pharmasys/internal/service"
	"pharmasys/internal/store"
	"pharmasys/internal/store/memory"
	"pharmasys/internal/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Fatal().Err(err).Msg("invalid configuration")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.AppEnv})

	if err := validateSecurityConfig(cfg); err != nil {
		logx.Fatal().Err(err).Msg("invalid security configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		logx.Fatal().Err(err).Msg("invalid timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, backend, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		logx.Fatal().Err(err).Str("backend", backend).Msg("repository unavailable; refusing to start")
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}
	logx.Info().Str("backend", backend).Msg("repository ready")

	cacheStore := cache.SnapshotCache(cache.NoopSnapshotCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logx.Warn().Err(err).Msg("redis unavailable, using noop cache")
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			logx.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis")
		}
	} else {
		logx.Info().Msg("cache: noop")
	}

	engine := metrics.NewEngine(cacheStore, cfg.MetricsCacheTTL(), cacheKeyPrefix(backend))
	svc := service.New(repo, engine, loc)
	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.GatePassphrase)
	if err != nil {
		logx.Fatal().Err(err).Msg("invalid gate passphrase")
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logx.Info().Str("addr", cfg.Address()).Str("timezone", loc.String()).Msg("pharmacy POS listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logx.Error().Err(err).Msg("close error")
		}
	}

	logx.Info().Msg("server stopped")
}

// openRepository picks the storage backend: Postgres when DATABASE_URL is set,
// a SQLite file when SQLITE_PATH is set, memory otherwise.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, string, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := sqlstore.New(ctx, sqlstore.Options{Dialect: sqlstore.Postgres, DSN: cfg.DatabaseURL, Seed: cfg.SeedData})
		if err != nil {
			return nil, "postgres", nil, err
		}
		return pg, "postgres", pg.Close, nil
	case cfg.SQLitePath != "":
		lite, err := sqlstore.New(ctx, sqlstore.Options{Dialect: sqlstore.SQLite, DSN: cfg.SQLitePath, Seed: cfg.SeedData})
		if err != nil {
			return nil, "sqlite", nil, err
		}
		return lite, "sqlite", lite.Close, nil
	case cfg.SeedData:
		return memory.NewSeeded(), "memory", nil, nil
	default:
		return memory.New(nil, nil, nil), "memory", nil, nil
	}
}

// cacheKeyPrefix scopes snapshot keys to this process for the memory backend,
// whose revisions restart at zero on every boot.
func cacheKeyPrefix(backend string) string {
	if backend == "memory" {
		return "pharmasys:" + uuid.NewString()
	}
	return "pharmasys:" + backend
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.GatePassphrase != "" && len(cfg.GatePassphrase) < 8 {
		return fmt.Errorf("GATE_PASSPHRASE must be at least 8 characters when set")
	}
	if len(cfg.GatePassphrase) > 72 {
		return fmt.Errorf("GATE_PASSPHRASE must be at most 72 bytes")
	}
	if cfg.IsProduction() && cfg.GatePassphrase == "" {
		logx.Warn().Msg("GATE_PASSPHRASE is empty; any non-empty credentials open the register")
	}
	return nil
}
