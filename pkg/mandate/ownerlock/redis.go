package ownerlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this holder still owns it,
// so an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed Locker using SET NX with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	keyfmt string
}

// NewRedis creates a Redis-backed Locker. ttl bounds how long a crashed
// holder can wedge an owner; a create/replace finishes well inside it.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		keyfmt: "mandate:ownerlock:%s",
	}
}

// Acquire polls SET NX until the lock is held or ctx is done.
func (r *Redis) Acquire(ctx context.Context, ownerID string) (func(), error) {
	key := fmt.Sprintf(r.keyfmt, ownerID)
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("ownerlock: acquire %s: %w", ownerID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ownerlock: acquire %s: %w", ownerID, ctx.Err())
		case <-time.After(r.retry):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err()
	}
	return release, nil
}
