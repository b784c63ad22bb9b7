package queue

import (
	"context"
	"fmt"
)

// DefaultOutcomeQueue is the durable queue outcome events are published to.
const DefaultOutcomeQueue = "campaign.outcomes"

// Publisher publishes outcome events.
type Publisher interface {
	Publish(ctx context.Context, msg OutcomeMessage) error
	Close() error
}

// DLQName returns the dead-letter queue name for a queue, e.g.
// dlq.campaign.outcomes.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}
