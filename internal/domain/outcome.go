package domain

import (
	"strconv"
	"time"
)

// OutcomeKind is the result class of one dispatch attempt.
type OutcomeKind string

const (
	OutcomeSent    OutcomeKind = "SENT"
	OutcomeFailed  OutcomeKind = "FAILED"
	OutcomeSkipped OutcomeKind = "SKIPPED"
)

func (k OutcomeKind) String() string { return string(k) }

// Skip reasons.
const (
	ReasonInvalidAddress = "invalid address"
	ReasonUnsubscribed   = "unsubscribed"
	ReasonNoTemplate     = "no template"
)

// Outcome is produced once per contact per pass.
type Outcome struct {
	Row       int
	Email     string
	Kind      OutcomeKind
	Reason    string
	Sequence  int
	Status    string
	Timestamp time.Time
	FollowUps int
	Log       string
}

// CounterPolicy decides whether a failed send still consumes its template.
type CounterPolicy struct {
	AdvanceOnFailure bool
}

// CellUpdates translates the outcome into absolute store writes. Skipped
// outcomes write nothing. Values never depend on the current cell, so
// applying the same outcome twice leaves the same state.
func (o Outcome) CellUpdates(policy CounterPolicy) []CellUpdate {
	if o.Row <= 0 {
		return nil
	}

	switch o.Kind {
	case OutcomeSent:
		return []CellUpdate{
			{Row: o.Row, Field: FieldStatus, Value: StatusSent},
			{Row: o.Row, Field: FieldLastActivity, Value: o.Timestamp.Format(TimestampLayout)},
			{Row: o.Row, Field: FieldFollowUps, Value: strconv.Itoa(o.Sequence)},
		}
	case OutcomeFailed:
		updates := []CellUpdate{
			{Row: o.Row, Field: FieldStatus, Value: StatusFailed},
			{Row: o.Row, Field: FieldLastActivity, Value: o.Timestamp.Format(TimestampLayout)},
		}
		if policy.AdvanceOnFailure && o.Sequence > 0 {
			updates = append(updates, CellUpdate{Row: o.Row, Field: FieldFollowUps, Value: strconv.Itoa(o.Sequence)})
		}
		return updates
	default:
		return nil
	}
}
