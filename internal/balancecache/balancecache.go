// Package balancecache is a read-through cache for the wallet balance read
// path. The ledger remains the source of truth; entries written on any code
// path invalidate the cached value, and a miss or a redis failure falls back
// to the store.
package balancecache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roomly/core/pkg/market"
)

const (
	keyPrefix  = "wallet:balance:"
	defaultTTL = 30 * time.Second
)

// Cache wraps a redis client for balance lookups.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New wires a Cache. A zero ttl uses the default.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached balance for a user, if present.
func (cache *Cache) Get(ctx context.Context, userID market.UserID) (market.AmountCents, bool) {
	raw, err := cache.client.Get(ctx, keyPrefix+userID.String()).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		cache.logger.Warn("balance cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return market.AmountCents(value), true
}

// Set stores a balance with the cache TTL.
func (cache *Cache) Set(ctx context.Context, userID market.UserID, balance market.AmountCents) {
	err := cache.client.Set(ctx, keyPrefix+userID.String(), strconv.FormatInt(balance.Int64(), 10), cache.ttl).Err()
	if err != nil {
		cache.logger.Warn("balance cache write failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Invalidate drops the cached balance after a ledger write.
func (cache *Cache) Invalidate(ctx context.Context, userID market.UserID) {
	err := cache.client.Del(ctx, keyPrefix+userID.String()).Err()
	if err != nil {
		cache.logger.Warn("balance cache invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Invalidator is a market.OperationLogger that drops a user's cached balance
// whenever an operation posts a ledger entry for them. Wired alongside the
// regular operation log, it covers background writes (expiry sweeps, forced
// hides) that never pass through an HTTP handler.
type Invalidator struct {
	cache *Cache
}

// NewInvalidator wires an Invalidator over a Cache.
func NewInvalidator(cache *Cache) *Invalidator {
	return &Invalidator{cache: cache}
}

func (invalidator *Invalidator) LogOperation(ctx context.Context, entry market.OperationLog) {
	if entry.Error != nil || entry.Kind == "" || entry.UserID.String() == "" {
		return
	}
	invalidator.cache.Invalidate(ctx, entry.UserID)
}
