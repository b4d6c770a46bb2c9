package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keys holding ETL run status.
const (
	ETLStatusKey       = "etl:last_update"
	HourlyStatusPrefix = "hourly_etl:last_update:"
)

// RedisStore wraps a redis client used for response caching, ETL status
// and job leases.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// ETLStatus records the outcome of the last ETL run for a report.
type ETLStatus struct {
	LastUpdate time.Time `json:"last_update"`
	ReportDate string    `json:"report_date,omitempty"`
	Rows       int       `json:"rows"`
	RunID      string    `json:"run_id,omitempty"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
}

// SetETLStatus stores status under key. A zero ttl keeps it indefinitely.
func (r *RedisStore) SetETLStatus(ctx context.Context, key string, status ETLStatus, ttl time.Duration) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, raw, ttl).Err()
}

// GetETLStatus loads the status stored under key. ok is false when no run
// has been recorded.
func (r *RedisStore) GetETLStatus(ctx context.Context, key string) (ETLStatus, bool, error) {
	var st ETLStatus
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return st, false, nil
	}
	if err != nil {
		return st, false, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, false, fmt.Errorf("decode etl status %s: %w", key, err)
	}
	return st, true, nil
}

// HourlyStatus returns the hourly ETL status for a reporting timezone,
// falling back to the daily ETL status when none was recorded.
func (r *RedisStore) HourlyStatus(ctx context.Context, tz string) (ETLStatus, bool, error) {
	st, ok, err := r.GetETLStatus(ctx, HourlyStatusPrefix+tz)
	if err != nil || ok {
		return st, ok, err
	}
	return r.GetETLStatus(ctx, ETLStatusKey)
}

// DeletePattern removes every key matching pattern and returns how many
// were deleted. SCAN is used so large keyspaces do not block the server.
func (r *RedisStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := r.Client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := r.Client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
