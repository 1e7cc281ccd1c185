// Command cart-prune removes line items whose meal is no longer offered from
// every stored cart.
package main

import (
	"context"
	"os"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/food-cart/internal/app"
	"github.com/xenking/food-cart/internal/backend"
	"github.com/xenking/food-cart/internal/domain/cart"
	"github.com/xenking/food-cart/internal/storage/postgres"
)

type config struct {
	Storage     string        `default:"postgres" usage:"Cart storage backend: postgres or redis"`
	DatabaseURL string        `usage:"PostgreSQL connection URL (or DATABASE_URL)" flag:"database-url"`
	RedisURL    string        `usage:"Redis connection URL (or REDIS_URL)" flag:"redis-url"`
	CartTTL     time.Duration `default:"720h" usage:"Redis only: TTL applied to rewritten carts" flag:"cart-ttl"`

	BackendURL     string        `default:"http://localhost:5000" usage:"Meals backend base URL" flag:"backend-url"`
	BackendTimeout time.Duration `default:"30s" usage:"Backend request timeout" flag:"backend-timeout"`
	CatalogFile    string        `usage:"Gzip JSON-lines meal dump used instead of the backend" flag:"catalog-file"`

	DryRun  bool          `default:"false" usage:"Count prunable items without writing" flag:"dry-run"`
	Workers int           `default:"8" usage:"Carts pruned concurrently"`
	MaxAge  time.Duration `default:"0" usage:"Postgres only: also delete carts untouched for this long" flag:"max-age"`
}

func loadConfig() (*config, error) {
	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FOODCART",
		Files:     []string{"config.yaml", "/etc/food-cart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
		AllowUnknownFields: true,
		AllowUnknownEnvs:   true,
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	return &cfg, nil
}

// storageConfig maps the prune settings onto the server's storage settings.
func (c *config) storageConfig() (*appkg.Config, error) {
	sc := &appkg.Config{
		Storage:     c.Storage,
		DatabaseURL: c.DatabaseURL,
		RedisURL:    c.RedisURL,
		CartTTL:     c.CartTTL,
	}
	switch c.Storage {
	case appkg.StoragePostgres:
		if c.DatabaseURL == "" {
			return nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
	case appkg.StorageRedis:
		if c.RedisURL == "" {
			return nil, errors.New("redis URL is required: set --redis-url or REDIS_URL")
		}
	default:
		// A fresh in-memory store has nothing to prune.
		return nil, errors.Errorf("storage %q cannot be pruned offline", c.Storage)
	}
	return sc, nil
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := run(ctx, lg, m, cfg); err != nil {
			return errors.Wrap(err, "cart prune")
		}
		lg.Info("Cart prune completed")
		return nil
	})
}

func run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *config) error {
	sc, err := cfg.storageConfig()
	if err != nil {
		return err
	}

	live, err := liveMeals(ctx, lg, m, cfg)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	storage, closeStorage, err := appkg.OpenStorage(ctx, sc)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer closeStorage()

	// Postgres can report and expire carts in SQL.
	kv, isPostgres := storage.(*postgres.KV)
	if isPostgres {
		logSummary(ctx, lg, kv, "before")
		if cfg.MaxAge > 0 && !cfg.DryRun {
			n, err := kv.DeleteStale(ctx, time.Now().Add(-cfg.MaxAge))
			if err != nil {
				return errors.Wrap(err, "delete stale carts")
			}
			lg.Info("Deleted stale carts", zap.Int64("carts", n), zap.Duration("max_age", cfg.MaxAge))
		}
	}

	store, err := cart.NewStore(storage, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create cart store")
	}
	p := &pruner{
		lg:      lg,
		storage: storage,
		store:   store,
		live:    live,
		dryRun:  cfg.DryRun,
		workers: cfg.Workers,
	}
	rep, err := p.Run(ctx)
	lg.Info("Prune finished",
		zap.Int64("carts", rep.Carts),
		zap.Int64("changed", rep.Changed),
		zap.Int64("removed_items", rep.Removed),
		zap.Int64("failed", rep.Failed),
		zap.Bool("dry_run", cfg.DryRun),
	)
	if err != nil {
		return err
	}

	if isPostgres {
		logSummary(ctx, lg, kv, "after")
	}
	return nil
}

// liveMeals builds the filter of meal ids still on offer, from the catalog
// dump when one is configured and from the backend otherwise.
func liveMeals(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *config) (*bloom.BloomFilter, error) {
	if cfg.CatalogFile != "" {
		filter, n, err := filterFromDump(ctx, cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		lg.Info("Loaded catalog dump", zap.String("file", cfg.CatalogFile), zap.Int("meals", n))
		if n == 0 {
			return nil, errors.New("catalog dump is empty")
		}
		return filter, nil
	}

	client, err := backend.New(backend.Config{
		BaseURL:        cfg.BackendURL,
		Timeout:        cfg.BackendTimeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return nil, err
	}
	meals, err := client.Meals().List(ctx)
	if err != nil {
		return nil, err
	}
	lg.Info("Loaded catalog from backend", zap.String("backend", cfg.BackendURL), zap.Int("meals", len(meals)))
	// An empty catalog would empty every cart.
	if len(meals) == 0 {
		return nil, errors.New("backend returned no meals")
	}
	return filterFromMeals(meals), nil
}

func logSummary(ctx context.Context, lg *zap.Logger, kv *postgres.KV, stage string) {
	s, err := kv.Summarize(ctx)
	if err != nil {
		lg.Warn("Summarize carts", zap.String("stage", stage), zap.Error(err))
		return
	}
	lg.Info("Cart summary",
		zap.String("stage", stage),
		zap.Int64("carts", s.Carts),
		zap.Int64("units", s.Units),
		zap.String("value", s.Value.String()),
	)
}
