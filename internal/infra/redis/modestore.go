package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/outreach-engine/internal/runstate"
	goredis "github.com/redis/go-redis/v9"
)

const defaultModeKey = "outreach:ordering:direction"

var _ runstate.ModeStore = (*ModeStore)(nil)

// ModeStore keeps the alternating direction in a single Redis key so that
// every replica flips the same value.
type ModeStore struct {
	client *goredis.Client
	key    string
}

func NewModeStore(client *goredis.Client, key string) *ModeStore {
	if key == "" {
		key = defaultModeKey
	}
	return &ModeStore{client: client, key: key}
}

func (s *ModeStore) GetDirection(ctx context.Context) (runstate.Direction, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, goredis.Nil) {
		return runstate.Ascending, nil
	}
	if err != nil {
		return runstate.Ascending, fmt.Errorf("failed to read direction: %w", err)
	}
	return runstate.ParseDirection(val), nil
}

func (s *ModeStore) SetDirection(ctx context.Context, d runstate.Direction) error {
	if err := s.client.Set(ctx, s.key, string(d), 0).Err(); err != nil {
		return fmt.Errorf("failed to write direction: %w", err)
	}
	return nil
}
