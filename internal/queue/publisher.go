package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

var errNacked = errors.New("broker did not confirm outcome message")

// RabbitMQPublisher publishes outcome events on one confirm-mode channel
// and waits for the broker ack before returning.
type RabbitMQPublisher struct {
	client *RabbitMQ

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg OutcomeMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid outcome message: %w", err)
	}

	publishing, err := buildPublishing(msg)
	if err != nil {
		return err
	}

	// Confirm-mode channels are not safe for interleaved publishers.
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.confirmChannel(ctx)
	if err != nil {
		return err
	}

	queue := p.client.Queue()
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		p.dropChannel()
		return fmt.Errorf("failed to publish %s to queue %q: %w", msg.MessageID(), queue, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for confirm of %s: %w", msg.MessageID(), err)
	}
	if !acked {
		return fmt.Errorf("%s: %w", msg.MessageID(), errNacked)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}

	p.mu.Lock()
	p.dropChannel()
	p.mu.Unlock()

	return p.client.Close()
}

// confirmChannel must be called with p.mu held.
func (p *RabbitMQPublisher) confirmChannel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	p.ch = ch
	return ch, nil
}

func (p *RabbitMQPublisher) dropChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func buildPublishing(msg OutcomeMessage) (amqp.Publishing, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal outcome message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     msg.Timestamp.UTC(),
		MessageId:     msg.MessageID(),
		CorrelationId: msg.RunID,
		Type:          msg.Outcome.String(),
		Headers: amqp.Table{
			"x-sequence": int32(msg.Sequence),
			"x-status":   msg.Status,
		},
		Body: payload,
	}, nil
}
