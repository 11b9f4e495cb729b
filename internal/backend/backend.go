// Package backend собирает хранилище состояний и источник описаний
// по конфигурации.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/shaiso/flowstate/internal/config"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/repo"
	"github.com/shaiso/flowstate/internal/store"
	"github.com/shaiso/flowstate/internal/store/memory"
	"github.com/shaiso/flowstate/internal/store/redis"
)

// Backends — открытые соединения. Close освобождает все.
type Backends struct {
	Store       store.Store
	Definitions engine.Source

	// DefinitionRepo задан, если описания читаются из PostgreSQL.
	DefinitionRepo *repo.DefinitionRepo

	pool   *pgxpool.Pool
	rdb    *goredis.Client
	logger *slog.Logger
}

// New создаёт пустой набор; соединения открываются методами Open*.
func New(logger *slog.Logger) *Backends {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backends{logger: logger}
}

// Open открывает хранилище cfg.StoreBackend и источник описаний.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := New(logger)

	if _, err := b.OpenStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if _, err := b.OpenDefinitions(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// OpenStore открывает хранилище cfg.StoreBackend.
func (b *Backends) OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := b.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Store = st
	return st, nil
}

// OpenDefinitions открывает источник описаний: cfg.DefinitionsDir, если
// он задан, иначе PostgreSQL. Источник оборачивается в engine.CachedSource.
func (b *Backends) OpenDefinitions(ctx context.Context, cfg *config.Config) (engine.Source, error) {
	defs, err := b.openDefinitions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Definitions = engine.NewCachedSource(defs, cfg.DefinitionCacheTTL)
	return b.Definitions, nil
}

// Pool возвращает пул PostgreSQL, открывая его при первом вызове.
func (b *Backends) Pool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}

	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	b.logger.Info("database connected")
	b.pool = pool
	return pool, nil
}

func (b *Backends) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return memory.New(), nil

	case config.StoreRedis:
		b.rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		s := redis.New(b.rdb, redis.WithLogger(b.logger))
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		b.logger.Info("redis connected", "addr", cfg.RedisAddr)
		return s, nil

	case config.StorePostgres:
		pool, err := b.Pool(ctx, cfg.DBURL)
		if err != nil {
			return nil, err
		}
		return repo.NewRecordRepo(pool), nil
	}

	return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
}

func (b *Backends) openDefinitions(ctx context.Context, cfg *config.Config) (engine.Source, error) {
	if cfg.DefinitionsDir != "" {
		registry := engine.NewRegistry()
		n, err := registry.LoadDir(cfg.DefinitionsDir)
		if err != nil {
			return nil, err
		}
		b.logger.Info("definitions loaded", "dir", cfg.DefinitionsDir, "count", n)
		return registry, nil
	}

	pool, err := b.Pool(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	b.DefinitionRepo = repo.NewDefinitionRepo(pool)
	return b.DefinitionRepo, nil
}

// Close закрывает открытые соединения.
func (b *Backends) Close() {
	if b.rdb != nil {
		if err := b.rdb.Close(); err != nil {
			b.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
