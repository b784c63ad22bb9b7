package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// OutcomeMessage is the broker payload describing one written dispatch
// outcome.
type OutcomeMessage struct {
	RunID     string             `json:"runId"`
	Row       int                `json:"row"`
	Email     string             `json:"email"`
	Outcome   domain.OutcomeKind `json:"outcome"`
	Reason    string             `json:"reason,omitempty"`
	Sequence  int                `json:"sequence"`
	Status    string             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
}

func NewOutcomeMessage(runID string, o domain.Outcome) OutcomeMessage {
	return OutcomeMessage{
		RunID:     runID,
		Row:       o.Row,
		Email:     domain.NormalizeEmail(o.Email),
		Outcome:   o.Kind,
		Reason:    o.Reason,
		Sequence:  o.Sequence,
		Status:    o.Status,
		Timestamp: o.Timestamp,
	}
}

// MessageID is stable per run and row so consumers can drop redeliveries.
func (m OutcomeMessage) MessageID() string {
	return fmt.Sprintf("%s:%d", m.RunID, m.Row)
}

func (m OutcomeMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return fmt.Errorf("runId is required")
	}
	if m.Row <= 0 {
		return fmt.Errorf("row must be positive, got %d", m.Row)
	}
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("email is required")
	}
	switch m.Outcome {
	case domain.OutcomeSent, domain.OutcomeFailed:
	default:
		return fmt.Errorf("invalid outcome %q", m.Outcome)
	}
	return nil
}
