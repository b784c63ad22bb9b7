package ratelimit

import "context"

// RateLimiter throttles sends per transport name. Wait blocks until a
// slot is free; Allow never blocks.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
