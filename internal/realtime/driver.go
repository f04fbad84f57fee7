package realtime

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/ammar1510/huddle/internal/config"
)

// Open builds the broker selected by cfg.Realtime.Driver
func Open(ctx context.Context, cfg *config.Config, db *sql.DB) (Broker, error) {
	switch cfg.Realtime.Driver {
	case config.DriverMemory:
		return NewHub(), nil
	case config.DriverPostgres:
		return NewPGBroker(cfg.Database.URL, db)
	case config.DriverRedis:
		opts, err := redis.ParseURL(cfg.Realtime.RedisURL)
		if err != nil {
			opts = &redis.Options{Addr: cfg.Realtime.RedisURL}
		}
		return NewRedisBroker(ctx, redis.NewClient(opts))
	case config.DriverAMQP:
		return NewAMQPBroker(cfg.Realtime.AMQPURL, cfg.Realtime.Exchange)
	}
	return nil, fmt.Errorf("unknown realtime driver %q", cfg.Realtime.Driver)
}
