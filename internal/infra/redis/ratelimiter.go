package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSendsPerSecond int64 = 10
	sendWindow                  = time.Second
	minRetryDelay               = 5 * time.Millisecond
	sendRateKeyPrefix           = "outreach:sendrate"
)

// takeSlotScript counts a send against the window key and reports the
// window's remaining lifetime in milliseconds when the budget is spent.
var takeSlotScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if used > tonumber(ARGV[1]) then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = tonumber(ARGV[2])
  end
  return ttl
end
return -1
`)

var errLimiterNotReady = errors.New("send rate limiter is not initialized")

var _ ratelimit.RateLimiter = (*SendRateLimiter)(nil)

// SendRateLimiter caps outgoing messages per transport across every engine
// process sharing one Redis. Each wall-clock second is its own budget.
type SendRateLimiter struct {
	client  *goredis.Client
	perSec  int64
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	takeLua *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, sendsPerSecond int) (*SendRateLimiter, error) {
	return newSendRateLimiter(client, int64(sendsPerSecond), time.Now, sleepWithContext)
}

func newSendRateLimiter(
	client *goredis.Client,
	perSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if perSec <= 0 {
		perSec = defaultSendsPerSecond
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &SendRateLimiter{
		client:  client,
		perSec:  perSec,
		now:     nowFn,
		sleep:   sleepFn,
		takeLua: takeSlotScript,
	}, nil
}

// Allow takes one slot from the current second for transport.
func (l *SendRateLimiter) Allow(ctx context.Context, transport string) (bool, error) {
	retryIn, err := l.take(ctx, transport)
	if err != nil {
		return false, err
	}
	return retryIn == 0, nil
}

// Wait blocks until a slot is granted or ctx ends. A denied call sleeps
// until the next window opens instead of polling.
func (l *SendRateLimiter) Wait(ctx context.Context, transport string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		retryIn, err := l.take(ctx, transport)
		if err != nil {
			return err
		}
		if retryIn == 0 {
			return nil
		}
		if err := l.sleep(ctx, retryIn); err != nil {
			return err
		}
	}
}

// take returns zero when a slot was granted, otherwise how long until the
// window that denied it closes.
func (l *SendRateLimiter) take(ctx context.Context, transport string) (time.Duration, error) {
	if l == nil || l.client == nil || l.takeLua == nil {
		return 0, errLimiterNotReady
	}

	bucket := strings.ToLower(strings.TrimSpace(transport))
	if bucket == "" {
		return 0, fmt.Errorf("rate limit key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := l.now()
	window := now.UTC().Unix()
	key := fmt.Sprintf("%s:%s:%d", sendRateKeyPrefix, bucket, window)

	ttl, err := l.takeLua.Run(ctx, l.client, []string{key}, l.perSec, sendWindow.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate send rate for %s: %w", bucket, err)
	}
	if ttl < 0 {
		return 0, nil
	}

	return retryDelay(now, time.Duration(ttl)*time.Millisecond), nil
}

// retryDelay is the shorter of the key's remaining TTL and the local
// distance to the next second, floored so a clock skew cannot spin.
func retryDelay(now time.Time, ttl time.Duration) time.Duration {
	d := now.Truncate(sendWindow).Add(sendWindow).Sub(now)
	if ttl > 0 && ttl < d {
		d = ttl
	}
	if d < minRetryDelay {
		return minRetryDelay
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
