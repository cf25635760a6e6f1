package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/core/logger"
)

// Options control the generic bootstrap pipeline. Database and Redis are
// optional: nil skips the corresponding connection.
type Options struct {
	Config     *coreconfig.Config
	Database   *coredatabase.Config
	Migrations *coredatabase.Migrations
	Redis      *coreconfig.RedisConfig
	// Missing lists absent optional settings and the feature each one disables.
	Missing map[string]string

	LoggerInit   func(*coreconfig.Config) error
	Connect      func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate      func(context.Context, *sqlx.DB, coredatabase.Migrations) error
	ConnectRedis func(context.Context, coreconfig.RedisConfig) (*redis.Client, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

// Close releases every connection opened by Run.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger, reports missing settings and opens the optional
// database and Redis connections.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	reportMissing(ctx, opts.Missing)

	res := &Result{}
	if opts.Database != nil {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(ctx, *opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.DB = db

		if opts.Migrations != nil {
			migrate := opts.Migrate
			if migrate == nil {
				migrate = coredatabase.RunMigrations
			}
			if err := migrate(ctx, db, *opts.Migrations); err != nil {
				_ = res.Close()
				return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
			}
		}
	}

	if opts.Redis != nil {
		connect := opts.ConnectRedis
		if connect == nil {
			connect = ConnectRedis
		}
		client, err := connect(ctx, *opts.Redis)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
		}
		res.Redis = client
	}
	return res, nil
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, cfg coreconfig.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error(ctx, logger.CompRedis, "redis.connect", slog.String("addr", cfg.Addr), logger.Err(err))
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info(ctx, logger.CompRedis, "redis.connect",
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", time.Since(start)),
	)
	return client, nil
}

func reportMissing(ctx context.Context, missing map[string]string) {
	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		logger.Warn(ctx, logger.CompConfig, "config.missing",
			slog.String("key", k),
			slog.String("disables", missing[k]),
		)
	}
}
