package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quizpack/internal/app"
	"quizpack/internal/config"
	"quizpack/internal/infra/auth"
	"quizpack/internal/infra/memory"
	"quizpack/internal/infra/postgres"
	redisstore "quizpack/internal/infra/redis"
	"quizpack/internal/infra/remote"
	"quizpack/internal/infra/sqlite"
	"quizpack/internal/questions"
	transport "quizpack/internal/transport/http"
)

// runtime is the assembled core shared by the start and play commands.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	store    app.Store
	checks   map[string]transport.Checker
	resolver *app.PackResolver
	tracker  *app.Tracker
	auth     *auth.TokenProvider
	closers  []func()
}

func bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, checks: make(map[string]transport.Checker)}
	if err := rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	fetcher := remote.NewClient(&http.Client{
		Timeout: config.TTLDuration(cfg.Packs.FetchTimeout, 15*time.Second),
	}, cfg.Packs.DiscoverPattern)
	rt.resolver = app.NewPackResolver(rt.store, fetcher, app.ResolverOptions{
		CacheTTL: config.TTLDuration(cfg.Packs.CacheTTL, app.DefaultCacheTTL),
		Logger:   logger,
	})
	for _, pack := range questions.Builtin() {
		if err := rt.resolver.RegisterBuiltinPack(pack); err != nil {
			rt.Close()
			return nil, fmt.Errorf("registering builtin pack %s: %w", pack.ID, err)
		}
	}

	rt.auth = auth.NewTokenProvider(cfg.Auth.Token)
	report, err := rt.resolver.LoadCachedPacks(ctx, rt.auth)
	if err != nil {
		logger.Warn("pack cache not loaded", "error", err)
	} else {
		logger.Info("pack cache loaded",
			"loaded", len(report.Loaded),
			"evicted", len(report.Evicted),
			"deferred", len(report.Deferred),
			"skipped", len(report.Skipped),
		)
	}
	rt.tracker = app.NewTracker(rt.store, logger)
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	cfg := rt.cfg
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		rt.store = store
		rt.checks["sqlite"] = store
		rt.closers = append(rt.closers, func() { store.Close() })
		rt.logger.Info("connected to sqlite", "path", cfg.Storage.SQLitePath)
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		store := redisstore.NewStore(client)
		rt.store = store
		rt.checks["redis"] = store
		rt.logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	case config.BackendPostgres:
		if err := runMigrationsWithConfig(ctx, cfg, rt.logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		store := postgres.NewStore(pool)
		rt.store = store
		rt.checks["postgres"] = store
		rt.logger.Info("connected to postgres")
	case config.BackendMemory, "":
		rt.store = memory.NewStore()
	default:
		return errors.New("unknown storage backend " + cfg.Storage.Backend)
	}
	return nil
}

// discover loads every remote pack when an endpoint and a usable token are configured.
func (rt *runtime) discover(ctx context.Context) {
	if rt.cfg.Packs.Endpoint == "" || !rt.auth.IsAuthenticated() {
		return
	}
	result, err := rt.resolver.DiscoverRemotePacks(ctx, rt.cfg.Packs.Endpoint, rt.auth.Credential())
	if err != nil {
		rt.logger.Warn("remote pack discovery failed", "endpoint", rt.cfg.Packs.Endpoint, "error", err)
		return
	}
	rt.logger.Info("remote packs discovered", "loaded", len(result.Loaded), "failed", len(result.Failed))
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
