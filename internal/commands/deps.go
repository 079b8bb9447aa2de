package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stocksync/internal/cache"
	"github.com/stocksync/internal/database"
	"github.com/stocksync/internal/gaps"
	"github.com/stocksync/internal/messaging"
	"github.com/stocksync/internal/provider"
	"github.com/stocksync/internal/ratelimit"
	syncengine "github.com/stocksync/internal/sync"
	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/logger"
)

// appDeps bundles the wired application components for a command run.
// Optional services (Redis, NATS) are nil when disabled or unreachable;
// the engine degrades gracefully without them.
type appDeps struct {
	cfg      *config.Config
	logger   *logrus.Logger
	mysql    *database.MySQLClient
	redis    *cache.RedisClient
	nats     *messaging.NATSClient
	engine   *syncengine.Engine
	analyzer *gaps.Analyzer
}

// buildDeps loads configuration and wires the engine with its
// collaborators.
func buildDeps() (*appDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	mysqlClient, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL client: %w", err)
	}

	deps := &appDeps{
		cfg:      cfg,
		logger:   log,
		mysql:    mysqlClient,
		analyzer: gaps.NewAnalyzer(mysqlClient, cfg.Sync.GapSlackDays),
	}

	// Redis and NATS are optional; a connection failure downgrades to
	// running without them rather than aborting the command.
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cfg.Redis, log)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, continuing without snapshot cache")
		} else {
			deps.redis = redisClient
		}
	}
	if cfg.NATS.Enabled {
		natsClient, err := messaging.NewNATSClient(&cfg.NATS, log)
		if err != nil {
			log.WithError(err).Warn("NATS unavailable, continuing without sync events")
		} else {
			deps.nats = natsClient
		}
	}

	engineDeps := syncengine.Deps{
		Prices:   mysqlClient,
		Marks:    mysqlClient,
		Sessions: mysqlClient,
		Source:   provider.NewFMPClient(&cfg.Provider, log),
		Limiter:  ratelimit.New(cfg.Sync.CallsPerMinute),
		Analyzer: deps.analyzer,
		Config:   &cfg.Sync,
		Logger:   log,
	}
	if deps.redis != nil {
		engineDeps.Cache = deps.redis
	}
	if deps.nats != nil {
		engineDeps.Events = deps.nats
	}
	deps.engine = syncengine.New(engineDeps)

	return deps, nil
}

// Close releases all backing connections.
func (d *appDeps) Close() {
	if d.nats != nil {
		d.nats.Close()
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if err := d.mysql.Close(); err != nil {
		d.logger.WithError(err).Warn("Failed to close MySQL client")
	}
}
