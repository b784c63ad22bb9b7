package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RunLock guards a campaign pass across processes with SET NX and a TTL.
// Extend and Release only touch the key while this instance still owns it.
type RunLock struct {
	client *goredis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func NewRunLock(client *goredis.Client, name string, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("run lock ttl must be positive")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate lock owner: %w", err)
	}

	return &RunLock{
		client: client,
		key:    fmt.Sprintf("outreach:lock:%s", name),
		owner:  hex.EncodeToString(b),
		ttl:    ttl,
	}, nil
}

func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *RunLock) TTL() time.Duration {
	return l.ttl
}

// Extend resets the expiry to the full TTL. It returns domain.ErrLockLost
// when the key expired or now belongs to another instance.
func (l *RunLock) Extend(ctx context.Context) error {
	extended, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if extended == 0 {
		return fmt.Errorf("lock %s: %w", l.key, domain.ErrLockLost)
	}
	return nil
}

func (l *RunLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
