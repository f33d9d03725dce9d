package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "stockledger:idem:"

// releaseScript deletes a claim only if this adapter still owns it, so an
// expired claim taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

local current = redis.call('GET', key)
if not current then
	return 0
end

if current == token then
	redis.call('DEL', key)
	return 1
end

return 0
`)

// RedisAdapter claims idempotency keys shared by every service instance.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
	token  string
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client: client,
		ttl:    ttl,
		token:  uuid.New().String(),
	}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, r.token, r.ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, r.token).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
