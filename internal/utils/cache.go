package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// BalanceTTL bounds how stale a cached wallet can be if an invalidation is lost
const BalanceTTL = 30 * time.Second

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb redis.Cmdable, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb redis.Cmdable, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// WalletCacheKey is the cache key of a wallet snapshot
func WalletCacheKey(walletID string) string {
	return "wallet:user:" + walletID
}

// WalletVersionKey counts invalidations of a wallet snapshot
func WalletVersionKey(walletID string) string {
	return "wallet:ver:" + walletID
}

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[1]
var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2]) or ''
if v ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// BalanceCache is the cache-aside layer in front of wallet reads. The ledger
// engine invalidates it after every commit.
type BalanceCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewBalanceCache creates a cache; ttl <= 0 uses BalanceTTL
func NewBalanceCache(rdb redis.Cmdable, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = BalanceTTL
	}
	return &BalanceCache{rdb: rdb, ttl: ttl}
}

// Get loads a cached wallet snapshot into dest
func (b *BalanceCache) Get(ctx context.Context, walletID string, dest any) (bool, error) {
	return GetCache(ctx, b.rdb, WalletCacheKey(walletID), dest)
}

// Version returns the invalidation counter of a wallet, "" if it was never
// invalidated. Read it before loading the wallet from the store.
func (b *BalanceCache) Version(ctx context.Context, walletID string) (string, error) {
	v, err := b.rdb.Get(ctx, WalletVersionKey(walletID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// SetIfVersion stores a wallet snapshot unless the wallet was invalidated
// since version was read, so a slow reader cannot put back a stale balance.
// It reports whether the snapshot was written.
func (b *BalanceCache) SetIfVersion(ctx context.Context, walletID, version string, value any) (bool, error) {
	data, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return false, err
	}
	keys := []string{WalletCacheKey(walletID), WalletVersionKey(walletID)}
	n, err := setIfVersion.Run(ctx, b.rdb, keys, version, data, b.ttl.Milliseconds()).Int()
	return n == 1, err
}

// Invalidate bumps the version of the given wallets and drops their
// snapshots; empty ids are skipped
func (b *BalanceCache) Invalidate(ctx context.Context, walletIDs ...string) error {
	keys := make([]string, 0, len(walletIDs))
	for _, id := range walletIDs {
		if id == "" {
			continue
		}
		if err := b.rdb.Incr(ctx, WalletVersionKey(id)).Err(); err != nil {
			return err
		}
		keys = append(keys, WalletCacheKey(id))
	}
	return DeleteCache(ctx, b.rdb, keys...)
}
