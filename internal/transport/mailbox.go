package transport

import (
	"context"
	"sync"

	"abdkv/internal/msg"
)

// Mailbox is an unbounded FIFO queue of envelopes with a single consumer.
type Mailbox struct {
	mu     sync.Mutex
	queue  []msg.Envelope
	closed bool
	signal chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		signal: make(chan struct{}, 1),
	}
}

// Put appends env to the mailbox. It never blocks.
func (m *Mailbox) Put(env msg.Envelope) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.queue = append(m.queue, env)
	m.mu.Unlock()

	m.wake()
	return nil
}

// Receive blocks until an envelope is available, the mailbox is closed and
// drained, or ctx is done.
func (m *Mailbox) Receive(ctx context.Context) (msg.Envelope, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			env := m.queue[0]
			m.queue[0] = msg.Envelope{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return env, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return msg.Envelope{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return msg.Envelope{}, ctx.Err()
		case <-m.signal:
		}
	}
}

// Len returns the number of queued envelopes.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close stops accepting envelopes. Queued envelopes can still be received.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wake()
}

func (m *Mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}
