package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/outreach-engine/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func TestRunLockExclusive(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	first, err := NewRunLock(rdb, "campaign", time.Minute)
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}
	second, err := NewRunLock(rdb, "campaign", time.Minute)
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first Acquire() = %v, %v; want true, nil", ok, err)
	}

	ok, err = second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("second instance must not acquire a held lock")
	}

	// A non-owner release leaves the lock in place.
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	ok, _ = second.Acquire(context.Background())
	if ok {
		t.Fatal("lock should still be held by first instance")
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire() after release = %v, %v; want true, nil", ok, err)
	}
}

func TestNewRunLockValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRunLock(nil, "x", time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRunLock(newTestRedisClient(t), "x", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestRunLockExtend(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lock, err := NewRunLock(rdb, "campaign", time.Minute)
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}
	if lock.TTL() != time.Minute {
		t.Fatalf("TTL() = %s, want 1m", lock.TTL())
	}
	if ok, err := lock.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v; want true, nil", ok, err)
	}

	mr.FastForward(50 * time.Second)
	if err := lock.Extend(context.Background()); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if ttl := mr.TTL("outreach:lock:campaign"); ttl != time.Minute {
		t.Fatalf("ttl after Extend = %s, want 1m", ttl)
	}

	// Past the original expiry the extended lock is still held.
	mr.FastForward(50 * time.Second)
	other, err := NewRunLock(rdb, "campaign", time.Minute)
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}
	if ok, _ := other.Acquire(context.Background()); ok {
		t.Fatal("extended lock should still be held")
	}

	// Once it lapses and another instance takes it, Extend reports the loss.
	mr.FastForward(time.Minute)
	if ok, err := other.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("other Acquire() = %v, %v; want true, nil", ok, err)
	}
	if err := lock.Extend(context.Background()); !errors.Is(err, domain.ErrLockLost) {
		t.Fatalf("Extend() error = %v, want %v", err, domain.ErrLockLost)
	}
}
