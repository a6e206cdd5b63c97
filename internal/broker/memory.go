// Package broker provides an in-process stand-in for the RabbitMQ client.
// It hands out amqp091 deliveries so the worker consumes them exactly as it
// consumes RabbitMQ messages.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrClosed is returned when publishing to a closed broker
var ErrClosed = errors.New("broker closed")

const defaultBuffer = 1024

// Memory is a single-queue broker backed by a buffered channel
type Memory struct {
	mu       sync.Mutex
	queue    chan amqp.Delivery
	done     chan struct{}
	closed   bool
	nextTag  uint64
	unacked  map[uint64]amqp.Delivery
	acked    int
	nacked   int
	requeued int
}

// NewMemory creates a broker holding up to buffer undelivered messages
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Memory{
		queue:   make(chan amqp.Delivery, buffer),
		done:    make(chan struct{}),
		unacked: make(map[uint64]amqp.Delivery),
	}
}

// PublishWithRetry enqueues the message. While the buffer is full it blocks
// until ctx is done or the broker closes.
func (m *Memory) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.nextTag++
	d := amqp.Delivery{
		Acknowledger: m,
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		DeliveryTag:  m.nextTag,
		Body:         append([]byte(nil), body...),
	}
	m.mu.Unlock()

	return m.enqueue(ctx, d)
}

// enqueue blocks until the message is buffered, ctx is done or the broker
// closes. The queue channel itself is never closed.
func (m *Memory) enqueue(ctx context.Context, d amqp.Delivery) error {
	select {
	case m.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// SetQos is a no-op; the pool size bounds in-flight work
func (m *Memory) SetQos(int) error {
	return nil
}

// Consume returns the shared delivery channel. Every consumer competes for
// the same messages.
func (m *Memory) Consume(string) (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.trackingQueue(), nil
}

// trackingQueue wraps the raw queue so every handed-out delivery is
// recorded as unacked. The channel is closed when the broker closes.
func (m *Memory) trackingQueue() <-chan amqp.Delivery {
	out := make(chan amqp.Delivery)
	go func() {
		defer close(out)
		for {
			var d amqp.Delivery
			select {
			case d = <-m.queue:
			case <-m.done:
				return
			}

			m.mu.Lock()
			m.unacked[d.DeliveryTag] = d
			m.mu.Unlock()

			select {
			case out <- d:
			case <-m.done:
				// never handed out
				m.mu.Lock()
				delete(m.unacked, d.DeliveryTag)
				m.mu.Unlock()
				return
			}
		}
	}()
	return out
}

// Ping reports whether the broker accepts messages
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close stops accepting messages and ends every consumer's channel.
// Messages still buffered are dropped.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

// Ack implements amqp.Acknowledger
func (m *Memory) Ack(tag uint64, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unacked, tag)
	m.acked++
	return nil
}

// Nack implements amqp.Acknowledger. Requeued messages go back to the tail
// of the queue with a fresh tag and the Redelivered flag set.
func (m *Memory) Nack(tag uint64, _ bool, requeue bool) error {
	m.mu.Lock()
	d, ok := m.unacked[tag]
	delete(m.unacked, tag)
	m.nacked++
	if !requeue || !ok || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.requeued++
	m.nextTag++
	d.DeliveryTag = m.nextTag
	d.Redelivered = true
	m.mu.Unlock()

	// consumers may be busy; do not block the caller's ack path
	go func() { _ = m.enqueue(context.Background(), d) }()
	return nil
}

// Reject implements amqp.Acknowledger
func (m *Memory) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}

// Stats is a snapshot of acknowledgement counters
type Stats struct {
	Acked    int
	Nacked   int
	Requeued int
	Unacked  int
	Queued   int
}

// Stats returns the current counters
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Acked:    m.acked,
		Nacked:   m.nacked,
		Requeued: m.requeued,
		Unacked:  len(m.unacked),
		Queued:   len(m.queue),
	}
}
