// Package monitor counts completion signals and records how long a run took.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"abdkv/internal/msg"
	"abdkv/internal/results"
	"abdkv/internal/transport"
)

// Monitor waits for a fixed number of distinct nodes to report completion.
type Monitor struct {
	template results.Record
	expected int
	sink     results.Sink
	now      func() time.Time
	start    time.Time

	seen map[msg.Address]struct{}
	done chan struct{}

	mu     sync.Mutex
	result results.Record
	err    error
}

// New creates a monitor expecting completions from expected nodes. The run
// is timed from this call. rec supplies the run id and N, f, M; the elapsed
// time and finish time are filled in when the last completion arrives.
func New(rec results.Record, expected int, sink results.Sink) *Monitor {
	return newMonitor(rec, expected, sink, time.Now)
}

func newMonitor(rec results.Record, expected int, sink results.Sink, now func() time.Time) *Monitor {
	return &Monitor{
		template: rec,
		expected: expected,
		sink:     sink,
		now:      now,
		start:    now(),
		seen:     make(map[msg.Address]struct{}, expected),
		done:     make(chan struct{}),
	}
}

// Run handles envelopes from mb until the run completes, ctx is done or mb is closed.
func (m *Monitor) Run(ctx context.Context, mb *transport.Mailbox) error {
	for {
		select {
		case <-m.done:
			return nil
		default:
		}
		env, err := mb.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("monitor: %w", err)
		}
		m.Handle(env)
	}
}

// Handle counts a CompletionSignal once per sender. Other messages are ignored.
func (m *Monitor) Handle(env msg.Envelope) {
	if _, ok := env.Body.(msg.CompletionSignal); !ok {
		return
	}
	if m.isDone() {
		return
	}
	if _, dup := m.seen[env.From]; dup {
		return
	}
	m.seen[env.From] = struct{}{}
	log.Printf("[%s] completion from %s (%d/%d)", msg.MonitorAddress, env.From, len(m.seen), m.expected)
	if len(m.seen) < m.expected {
		return
	}

	end := m.now()
	rec := m.template
	rec.ElapsedMillis = end.Sub(m.start).Milliseconds()
	rec.FinishedAt = end

	var err error
	if m.sink != nil {
		if err = m.sink.Append(rec); err != nil {
			err = fmt.Errorf("record result: %w", err)
		}
	}

	m.mu.Lock()
	m.result = rec
	m.err = err
	m.mu.Unlock()
	close(m.done)
}

func (m *Monitor) isDone() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Done is closed once every expected node has reported.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Result returns the completed record and any error writing it to the sink.
// It is only meaningful after Done is closed.
func (m *Monitor) Result() (results.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.err
}
