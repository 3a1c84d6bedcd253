package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("shop lock is held by another run")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ShopLock is a per-shop advisory lock kept in redis with a TTL, so a crashed
// holder cannot block the shop forever.
type ShopLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewShopLock(client *redisv9.Client, ttl time.Duration) *ShopLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ShopLock{client: client, ttl: ttl}
}

// Acquire takes the lock for shopID and returns the function that releases it.
func (l *ShopLock) Acquire(ctx context.Context, shopID string) (func(context.Context) error, error) {
	key := l.key(shopID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire shop lock failed: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis release shop lock failed: %w", err)
		}
		return nil
	}
	return release, nil
}

func (l *ShopLock) key(shopID string) string {
	return fmt.Sprintf("recommender:precompute:lock:%s", shopID)
}
