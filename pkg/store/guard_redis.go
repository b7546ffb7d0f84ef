package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of redis.UniversalClient the guard uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisGuard implements SequenceGuard across processes with SET NX. Claims
// expire after the configured TTL.
type RedisGuard struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisGuard creates a guard connected to addr. A ttl <= 0 uses
// DefaultClaimTTL.
func NewRedisGuard(addr, password string, db int, ttl time.Duration) *RedisGuard {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisGuardWithClient(rdb, ttl)
}

// NewRedisGuardWithClient wraps an existing client.
func NewRedisGuardWithClient(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	return newRedisGuard(client, ttl)
}

func newRedisGuard(client redisClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, ledger string, seq int64) error {
	ok, err := g.client.SetNX(ctx, guardKey(ledger, seq), time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return fmt.Errorf("store: redis claim: %w", err)
	}
	if !ok {
		return ErrSequenceClaimed
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, ledger string, seq int64) error {
	if err := g.client.Del(ctx, guardKey(ledger, seq)).Err(); err != nil {
		return fmt.Errorf("store: redis release: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
