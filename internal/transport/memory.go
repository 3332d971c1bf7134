package transport

import (
	"fmt"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"

	"abdkv/internal/msg"
)

// MemoryNetwork connects endpoints of a single process through their mailboxes.
type MemoryNetwork struct {
	boxes  cmap.ConcurrentMap
	closed atomic.Bool
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		boxes: cmap.New(),
	}
}

// Register creates the mailbox for addr.
func (n *MemoryNetwork) Register(addr msg.Address) (*Mailbox, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	mb := NewMailbox()
	if !n.boxes.SetIfAbsent(string(addr), mb) {
		return nil, fmt.Errorf("register %s: %w", addr, ErrDuplicateAddress)
	}
	return mb, nil
}

// Send appends env to the destination's mailbox.
func (n *MemoryNetwork) Send(env msg.Envelope) error {
	v, ok := n.boxes.Get(string(env.To))
	if !ok {
		return fmt.Errorf("send %s: %w", env, ErrUnknownAddress)
	}
	if err := v.(*Mailbox).Put(env); err != nil {
		return fmt.Errorf("send %s: %w", env, err)
	}
	return nil
}

// Close closes every registered mailbox.
func (n *MemoryNetwork) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	for item := range n.boxes.IterBuffered() {
		item.Val.(*Mailbox).Close()
	}
	return nil
}
