package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "revoked:"

// RedisRegistry stores blacklist entries as Redis keys with native TTL
// expiry, shared by every API instance.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry connects a registry to the given Redis instance.
func NewRedisRegistry(addr, password string, db int) (*RedisRegistry, error) {
	if addr == "" {
		return nil, errors.New("revocation: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRegistry{client: client}, nil
}

// Ping verifies connectivity, used by the readiness probe.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

// Blacklist records the jti for ttl.
func (r *RedisRegistry) Blacklist(ctx context.Context, jti, reason string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("revocation: jti is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := r.client.Set(ctx, keyPrefix+jti, reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the jti has a live entry.
func (r *RedisRegistry) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
