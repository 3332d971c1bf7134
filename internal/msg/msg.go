package msg

import (
	"fmt"
	"strconv"
)

// Address is the stable identity of a message endpoint.
type Address string

const (
	// MonitorAddress is the completion monitor's endpoint.
	MonitorAddress Address = "monitor"
	// CoordinatorAddress is used as the sender of configuration messages.
	CoordinatorAddress Address = "coordinator"
)

// NodeAddress returns the address of the replica with the given index.
func NodeAddress(index int) Address {
	return Address("p" + strconv.Itoa(index))
}

// Kind identifies a message type on the wire.
type Kind int

const (
	KindPeerConfig Kind = iota + 1
	KindOperationCountConfig
	KindCrashSignal
	KindLaunchSignal
	KindReadRequest
	KindReadResponse
	KindWriteRequest
	KindAck
	KindCompletionSignal
)

// String returns the message type name.
func (k Kind) String() string {
	switch k {
	case KindPeerConfig:
		return "PeerConfig"
	case KindOperationCountConfig:
		return "OperationCountConfig"
	case KindCrashSignal:
		return "CrashSignal"
	case KindLaunchSignal:
		return "LaunchSignal"
	case KindReadRequest:
		return "ReadRequest"
	case KindReadResponse:
		return "ReadResponse"
	case KindWriteRequest:
		return "WriteRequest"
	case KindAck:
		return "Ack"
	case KindCompletionSignal:
		return "CompletionSignal"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Message is implemented by every protocol message.
type Message interface {
	Kind() Kind
}

// PeerConfig hands a node the full replica list (itself included) and the
// monitor that receives its completion signal.
type PeerConfig struct {
	Peers   []Address
	Monitor Address
}

// OperationCountConfig sets the number of put operations M. The same number
// of get operations follows.
type OperationCountConfig struct {
	Operations int
}

// CrashSignal puts a node into silent mode.
type CrashSignal struct{}

// LaunchSignal starts a node's operation loop.
type LaunchSignal struct{}

// ReadRequest opens the read phase of an operation.
type ReadRequest struct {
	Seq int
}

// ReadResponse carries a replica's local pair back to the requester.
type ReadResponse struct {
	Value     int
	Timestamp int
	Seq       int
}

// WriteRequest opens the write-back phase of an operation.
type WriteRequest struct {
	Value     int
	Timestamp int
}

// Ack echoes the pair of the WriteRequest it answers.
type Ack struct {
	Value     int
	Timestamp int
}

// CompletionSignal tells the monitor a node finished all its operations.
type CompletionSignal struct{}

func (PeerConfig) Kind() Kind           { return KindPeerConfig }
func (OperationCountConfig) Kind() Kind { return KindOperationCountConfig }
func (CrashSignal) Kind() Kind          { return KindCrashSignal }
func (LaunchSignal) Kind() Kind         { return KindLaunchSignal }
func (ReadRequest) Kind() Kind          { return KindReadRequest }
func (ReadResponse) Kind() Kind         { return KindReadResponse }
func (WriteRequest) Kind() Kind         { return KindWriteRequest }
func (Ack) Kind() Kind                  { return KindAck }
func (CompletionSignal) Kind() Kind     { return KindCompletionSignal }

// Envelope addresses a message.
type Envelope struct {
	From Address
	To   Address
	Body Message
}

// String returns a compact description used in diagnostics.
func (e Envelope) String() string {
	if e.Body == nil {
		return fmt.Sprintf("%s->%s <nil>", e.From, e.To)
	}
	return fmt.Sprintf("%s->%s %s%+v", e.From, e.To, e.Body.Kind(), e.Body)
}
