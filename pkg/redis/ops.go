package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// incrWindow increments a counter and sets its TTL in the same step when the window opens.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// unlockOwned deletes a lock only while it still carries the holder's token.
var unlockOwned = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// IncrWithTTL bumps a fixed-window counter. The TTL is only applied when the window opens.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return incrWindow.Run(ctx, c.rdb, []string{key}, ttl.Milliseconds()).Int64()
}

// AcquireLock takes lock:<scope>:<id> for ttl. The release func is a no-op unless the lock was
// acquired, and it never removes a lock that expired and was taken by someone else.
func (c *Client) AcquireLock(ctx context.Context, scope, id string, ttl time.Duration) (func(context.Context), bool, error) {
	noop := func(context.Context) {}
	if err := c.ready(); err != nil {
		return noop, false, err
	}
	lockKey := c.LockKey(scope, id)
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil || !ok {
		return noop, false, err
	}
	return func(releaseCtx context.Context) {
		_ = unlockOwned.Run(releaseCtx, c.rdb, []string{lockKey}, token).Err()
	}, true, nil
}

// PushCapped moves value to the head of the list, dropping older copies, and keeps at most max entries.
func (c *Client) PushCapped(ctx context.Context, key, value string, max int64, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	if max <= 0 {
		return errors.New("list cap must be positive")
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, key, 0, value)
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, max-1)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// Range returns list entries between start and stop inclusive.
func (c *Client) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.rdb.LRange(ctx, key, start, stop).Result()
}
