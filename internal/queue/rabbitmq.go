package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	deadLetterExchange = "campaign.dlx"
	dialTimeout        = 15 * time.Second
	firstRedialWait    = time.Second
	maxRedialWait      = 30 * time.Second
)

// RabbitMQ owns the broker connection used for outcome events. The outcome
// queue and its dead-letter queue are declared once per connection.
type RabbitMQ struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)

	mu       sync.Mutex
	conn     *amqp.Connection
	declared bool

	// live mirrors conn so Healthy never waits behind a redial.
	live atomic.Pointer[amqp.Connection]
}

func NewRabbitMQ(url string, queue string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = DefaultOutcomeQueue
	}

	r := &RabbitMQ{url: url, queue: queue, dial: amqp.Dial}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.connectionLocked(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Queue() string {
	return r.queue
}

// Healthy reports whether the connection is open.
func (r *RabbitMQ) Healthy() bool {
	conn := r.live.Load()
	return conn != nil && !conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = false
	r.live.Store(nil)
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// channel opens a channel on a live connection, redialing once if the
// current connection refuses.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; ; attempt++ {
		conn, err := r.connectionLocked(ctx)
		if err != nil {
			return nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			if attempt > 0 {
				return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
			}
			_ = conn.Close()
			r.conn = nil
			continue
		}

		if !r.declared {
			if err := declareOutcomeTopology(ch, r.queue); err != nil {
				_ = ch.Close()
				return nil, err
			}
			r.declared = true
		}
		return ch, nil
	}
}

// connectionLocked returns the open connection or dials until one is up or
// ctx ends. r.mu must be held.
func (r *RabbitMQ) connectionLocked(ctx context.Context) (*amqp.Connection, error) {
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	wait := firstRedialWait
	for {
		conn, err := r.dial(r.url)
		if err == nil {
			r.conn = conn
			r.declared = false
			r.live.Store(conn)
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq dial gave up: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
		wait = nextRedialWait(wait)
	}
}

func nextRedialWait(wait time.Duration) time.Duration {
	wait *= 2
	if wait > maxRedialWait {
		return maxRedialWait
	}
	return wait
}

// declareOutcomeTopology declares the dead-letter exchange and queue, then
// the outcome queue routing rejects to them.
func declareOutcomeTopology(ch *amqp.Channel, queue string) error {
	if err := ch.ExchangeDeclare(deadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", deadLetterExchange, err)
	}

	dlq := DLQName(queue)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, queue, deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", dlq, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": queue,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}
	return nil
}
