package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "rate_limit:"

// incrWithWindow starts the expiry only when INCR creates the key, so the
// window runs for exactly one period from the first increment.
var incrWithWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

type RateLimitRepository interface {
	Count(ctx context.Context, userID string) (int, error)
	Increment(ctx context.Context, userID string, window time.Duration) (int, error)
	TTL(ctx context.Context, userID string) (time.Duration, error)
}

type rateLimitRepository struct {
	client *redis.Client
}

func NewRateLimitRepository(client *redis.Client) RateLimitRepository {
	return &rateLimitRepository{client: client}
}

func rateLimitKey(userID string) string {
	return rateLimitKeyPrefix + userID
}

func (r *rateLimitRepository) Count(ctx context.Context, userID string) (int, error) {
	countStr, err := r.client.Get(ctx, rateLimitKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil // No counter set yet
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rate limit counter: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid counter format: %w", err)
	}
	return count, nil
}

func (r *rateLimitRepository) Increment(ctx context.Context, userID string, window time.Duration) (int, error) {
	count, err := incrWithWindow.Run(ctx, r.client, []string{rateLimitKey(userID)}, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return count, nil
}

// TTL reports how long the current window has left, zero if none is open.
func (r *rateLimitRepository) TTL(ctx context.Context, userID string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, rateLimitKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
