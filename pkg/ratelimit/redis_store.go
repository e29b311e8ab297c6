package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPattern = "ratelimit:%s"

// hitSource counts an attempt and starts the window in one atomic step. A key
// left without a TTL gets one on its next attempt so it cannot outlive its
// window.
const hitSource = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[1]) then
	if redis.call("PTTL", KEYS[1]) == -1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
end
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) == -1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`

var hitScript = redis.NewScript(hitSource)

// RedisStore shares attempt counters between gateway instances. The key TTL
// is the window.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// ConnectRedis opens a client for rawURL and checks that the server answers.
func ConnectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	client, err := NewRedisClient(rawURL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	redisKey := fmt.Sprintf(redisKeyPattern, key)

	allowed, err := hitScript.Run(ctx, s.client, []string{redisKey}, max, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to count attempt: %w", err)
	}
	return allowed == 1, nil
}
