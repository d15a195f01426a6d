package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

func walletCacheKey(userID string) string  { return "wallet:user:" + userID }
func historyCacheKey(userID string) string { return "txhistory:user:" + userID }
func escrowCacheKey(userID string) string  { return "escrows:user:" + userID }

// cacheGet retrieves a cached value into dest, reporting whether the key
// existed. A nil client disables caching entirely.
func cacheGet(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(val), dest)
}

// cacheSet stores a value under key with the standard TTL.
func cacheSet(ctx context.Context, rdb *redis.Client, key string, value any) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, cacheTTL).Err()
}

// invalidateUserCache drops every cached read for the given users.
// Called after any mutation that touches their wallets or escrows.
func invalidateUserCache(ctx context.Context, rdb *redis.Client, userIDs ...string) {
	if rdb == nil {
		return
	}
	keys := make([]string, 0, len(userIDs)*3)
	for _, id := range userIDs {
		keys = append(keys, walletCacheKey(id), historyCacheKey(id), escrowCacheKey(id))
	}
	_ = rdb.Del(ctx, keys...).Err()
}
