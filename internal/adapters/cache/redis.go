package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/eventcal/core/internal/domain/entities"
	"github.com/eventcal/core/internal/infrastructure/logger"
)

// RedisConfig holds the connection settings of the shared view cache
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Redis is a view cache shared between instances. Views are stored as JSON
// under KeyPrefix; Invalidate deletes every key under the prefix.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedis connects with exponential backoff between attempts.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *logger.Logger) (*Redis, error) {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig.TTL
	}
	retryDelay := cfg.RetryDelay
	log := logger.WithComponent("redis_cache")

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			log.Infow("Redis connected", "addr", cfg.Addr, "db", cfg.DB)
			return newRedisWithClient(client, cfg.KeyPrefix, cfg.TTL, log), nil
		}
		_ = client.Close()

		log.Warnw("Redis connection failed", "attempt", attempt, "max_attempts", cfg.MaxRetries, "error", lastErr)
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			retryDelay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.MaxRetries, lastErr)
}

func newRedisWithClient(client *redis.Client, prefix string, ttl time.Duration, logger *logger.Logger) *Redis {
	if prefix == "" {
		prefix = "eventcal:view:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

// Get treats any redis or decoding failure as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]entities.Event, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warnw("Redis get failed", "key", key, "error", err)
		}
		return nil, false
	}

	events, err := decodeView(data)
	if err != nil {
		r.logger.Warnw("Discarding undecodable cached view", "key", key, "error", err)
		return nil, false
	}
	return events, true
}

func (r *Redis) Set(ctx context.Context, key string, events []entities.Event) error {
	data, err := encodeView(events)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache view %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached views: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cached views: %w", err)
	}
	return nil
}

// Ping is used by the readiness probe
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func encodeView(events []entities.Event) ([]byte, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("failed to encode view: %w", err)
	}
	return data, nil
}

func decodeView(data []byte) ([]entities.Event, error) {
	var events []entities.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode view: %w", err)
	}
	if events == nil {
		events = []entities.Event{}
	}
	return events, nil
}
