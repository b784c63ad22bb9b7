// Package store defines the tabular store port consumed by the campaign
// engine and the schema mapping applied to raw rows at ingestion.
package store

import (
	"context"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// DefaultMaxBatchSize bounds a single BatchWrite call when a backend does
// not declare its own limit.
const DefaultMaxBatchSize = 5000

// Store is the external contact/template table.
type Store interface {
	// ReadAllContacts returns contacts in store order.
	ReadAllContacts(ctx context.Context) ([]domain.Contact, error)
	ReadAllTemplates(ctx context.Context) ([]domain.Template, error)
	// ReadColumn returns one cell per data row, in store order.
	ReadColumn(ctx context.Context, field domain.Field) ([]domain.Cell, error)
	// BatchWrite applies at most MaxBatchSize updates.
	BatchWrite(ctx context.Context, updates []domain.CellUpdate) error
	MaxBatchSize() int
}

// Chunk splits updates into slices of at most size elements.
func Chunk(updates []domain.CellUpdate, size int) [][]domain.CellUpdate {
	if len(updates) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultMaxBatchSize
	}

	chunks := make([][]domain.CellUpdate, 0, (len(updates)+size-1)/size)
	for start := 0; start < len(updates); start += size {
		end := start + size
		if end > len(updates) {
			end = len(updates)
		}
		chunks = append(chunks, updates[start:end])
	}
	return chunks
}

// Split divides items into parts contiguous groups of near-equal length.
// Empty groups are dropped.
func Split[T any](items []T, parts int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > len(items) {
		parts = len(items)
	}

	groups := make([][]T, 0, parts)
	size := len(items) / parts
	rem := len(items) % parts
	start := 0
	for i := 0; i < parts; i++ {
		n := size
		if i < rem {
			n++
		}
		groups = append(groups, items[start:start+n])
		start += n
	}
	return groups
}
