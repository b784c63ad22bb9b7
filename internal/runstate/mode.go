package runstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Direction is the traversal order used by the alternating ordering mode.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

func (d Direction) Flip() Direction {
	if d == Descending {
		return Ascending
	}
	return Descending
}

// ParseDirection accepts asc/desc and the long forms. Anything else is
// ascending.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending", "reverse", "bottom_up":
		return Descending
	default:
		return Ascending
	}
}

// ModeStore persists the alternating direction across passes and restarts.
type ModeStore interface {
	GetDirection(ctx context.Context) (Direction, error)
	SetDirection(ctx context.Context, d Direction) error
}

type modeFile struct {
	Direction Direction `yaml:"direction"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

var _ ModeStore = (*FileModeStore)(nil)

// FileModeStore keeps the direction in a small YAML document.
type FileModeStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewFileModeStore(path string) *FileModeStore {
	return &FileModeStore{path: path, now: time.Now}
}

// GetDirection returns Ascending when the file does not exist yet.
func (s *FileModeStore) GetDirection(_ context.Context) (Direction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Ascending, nil
	}
	if err != nil {
		return Ascending, fmt.Errorf("failed to read mode file: %w", err)
	}

	var doc modeFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Ascending, fmt.Errorf("failed to decode mode file: %w", err)
	}
	return ParseDirection(string(doc.Direction)), nil
}

// SetDirection replaces the file atomically via rename.
func (s *FileModeStore) SetDirection(_ context.Context, d Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := yaml.Marshal(modeFile{Direction: d, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode mode file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create mode dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write mode file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace mode file: %w", err)
	}
	return nil
}
