package service

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/runstate"
)

type OrderingMode string

const (
	OrderingSequential  OrderingMode = "sequential"
	OrderingOldestFirst OrderingMode = "oldest-first"
	OrderingAlternating OrderingMode = "alternating"
)

func ParseOrderingMode(raw string) (OrderingMode, error) {
	switch mode := OrderingMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case OrderingSequential, OrderingOldestFirst, OrderingAlternating:
		return mode, nil
	case "":
		return OrderingSequential, nil
	default:
		return "", fmt.Errorf("%w: unknown ordering mode %q", domain.ErrValidation, raw)
	}
}

// OrderContacts returns a new slice in pass order. The input is never
// modified.
//
// oldest-first moves the contacts whose parsed last-activity equals the
// minimum to the front; everything else, including contacts without a
// parseable timestamp, keeps store order. alternating walks the store
// bottom-up when dir is Descending.
func OrderContacts(contacts []domain.Contact, mode OrderingMode, dir runstate.Direction) []domain.Contact {
	ordered := make([]domain.Contact, 0, len(contacts))

	switch mode {
	case OrderingOldestFirst:
		oldest := -1
		for i, c := range contacts {
			if c.LastActivity.IsZero() {
				continue
			}
			if oldest < 0 || c.LastActivity.Before(contacts[oldest].LastActivity) {
				oldest = i
			}
		}
		if oldest < 0 {
			return append(ordered, contacts...)
		}
		minActivity := contacts[oldest].LastActivity
		for _, c := range contacts {
			if !c.LastActivity.IsZero() && c.LastActivity.Equal(minActivity) {
				ordered = append(ordered, c)
			}
		}
		for _, c := range contacts {
			if c.LastActivity.IsZero() || !c.LastActivity.Equal(minActivity) {
				ordered = append(ordered, c)
			}
		}
		return ordered

	case OrderingAlternating:
		if dir == runstate.Descending {
			for i := len(contacts) - 1; i >= 0; i-- {
				ordered = append(ordered, contacts[i])
			}
			return ordered
		}
		return append(ordered, contacts...)

	default:
		return append(ordered, contacts...)
	}
}
