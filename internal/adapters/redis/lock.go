package redisad

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var ErrLockLost = errors.New("redis lock: not held")

type Locker struct {
	c      *redis.Client
	prefix string
}

func NewLocker(c *redis.Client) *Locker { return &Locker{c: c, prefix: "hostaway:lock:"} }

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, l.c, []string{l.prefix + key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
