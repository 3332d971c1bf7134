package transport

import (
	"errors"

	"abdkv/internal/msg"
)

var (
	// ErrUnknownAddress is returned when no endpoint is registered under the
	// destination address.
	ErrUnknownAddress = errors.New("unknown address")
	// ErrClosed is returned by mailboxes and networks after Close.
	ErrClosed = errors.New("transport closed")
	// ErrDuplicateAddress is returned when an address is registered twice.
	ErrDuplicateAddress = errors.New("address already registered")
)

// Sender delivers an envelope to the endpoint named by its To field.
// Send must not block on the receiver.
type Sender interface {
	Send(env msg.Envelope) error
}

// Network is a Sender that endpoints can register with.
type Network interface {
	Sender
	// Register creates the mailbox for addr.
	Register(addr msg.Address) (*Mailbox, error)
	// Close closes every registered mailbox.
	Close() error
}
