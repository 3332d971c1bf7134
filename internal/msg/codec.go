package msg

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers. The layout is stable so that processes built from
// different revisions can still talk to each other.
const (
	fieldFrom protowire.Number = 1
	fieldTo   protowire.Number = 2
	fieldKind protowire.Number = 3
	fieldBody protowire.Number = 4
)

var (
	// ErrEmptyBody is returned when an envelope carries no message.
	ErrEmptyBody = errors.New("envelope has no body")
	// ErrUnknownKind is returned for message kinds this build does not know.
	ErrUnknownKind = errors.New("unknown message kind")
)

// Marshal encodes an envelope in protobuf wire format.
func Marshal(env Envelope) ([]byte, error) {
	if env.Body == nil {
		return nil, fmt.Errorf("marshal %s->%s: %w", env.From, env.To, ErrEmptyBody)
	}
	body, err := marshalBody(env.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s->%s: %w", env.From, env.To, err)
	}

	b := make([]byte, 0, len(body)+len(env.From)+len(env.To)+8)
	b = appendString(b, fieldFrom, string(env.From))
	b = appendString(b, fieldTo, string(env.To))
	b = appendVarint(b, fieldKind, uint64(env.Body.Kind()))
	b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b, nil
}

// Unmarshal decodes an envelope produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (Envelope, error) {
	var (
		env  Envelope
		kind Kind
		body []byte
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldFrom:
			s, n, err := consumeString(num, typ, b)
			env.From = Address(s)
			return n, err
		case fieldTo:
			s, n, err := consumeString(num, typ, b)
			env.To = Address(s)
			return n, err
		case fieldKind:
			v, n, err := consumeVarint(num, typ, b)
			kind = Kind(v)
			return n, err
		case fieldBody:
			v, n, err := consumeBytes(num, typ, b)
			body = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if kind == 0 {
		return Envelope{}, fmt.Errorf("unmarshal %s->%s: %w", env.From, env.To, ErrEmptyBody)
	}

	env.Body, err = unmarshalBody(kind, body)
	if err != nil {
		return Envelope{}, fmt.Errorf("unmarshal %s->%s %s: %w", env.From, env.To, kind, err)
	}
	return env, nil
}

func marshalBody(m Message) ([]byte, error) {
	var b []byte
	switch m := m.(type) {
	case PeerConfig:
		for _, p := range m.Peers {
			b = appendString(b, 1, string(p))
		}
		b = appendString(b, 2, string(m.Monitor))
	case OperationCountConfig:
		b = appendInt(b, 1, m.Operations)
	case CrashSignal, LaunchSignal, CompletionSignal:
	case ReadRequest:
		b = appendInt(b, 1, m.Seq)
	case ReadResponse:
		b = appendInt(b, 1, m.Value)
		b = appendInt(b, 2, m.Timestamp)
		b = appendInt(b, 3, m.Seq)
	case WriteRequest:
		b = appendInt(b, 1, m.Value)
		b = appendInt(b, 2, m.Timestamp)
	case Ack:
		b = appendInt(b, 1, m.Value)
		b = appendInt(b, 2, m.Timestamp)
	default:
		return nil, fmt.Errorf("%T: %w", m, ErrUnknownKind)
	}
	return b, nil
}

func unmarshalBody(kind Kind, b []byte) (Message, error) {
	switch kind {
	case KindPeerConfig:
		var m PeerConfig
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				s, n, err := consumeString(num, typ, b)
				m.Peers = append(m.Peers, Address(s))
				return n, err
			case 2:
				s, n, err := consumeString(num, typ, b)
				m.Monitor = Address(s)
				return n, err
			}
			return 0, nil
		})
		return m, err
	case KindOperationCountConfig:
		var m OperationCountConfig
		err := walkInts(b, &m.Operations)
		return m, err
	case KindCrashSignal:
		return CrashSignal{}, nil
	case KindLaunchSignal:
		return LaunchSignal{}, nil
	case KindCompletionSignal:
		return CompletionSignal{}, nil
	case KindReadRequest:
		var m ReadRequest
		err := walkInts(b, &m.Seq)
		return m, err
	case KindReadResponse:
		var m ReadResponse
		err := walkInts(b, &m.Value, &m.Timestamp, &m.Seq)
		return m, err
	case KindWriteRequest:
		var m WriteRequest
		err := walkInts(b, &m.Value, &m.Timestamp)
		return m, err
	case KindAck:
		var m Ack
		err := walkInts(b, &m.Value, &m.Timestamp)
		return m, err
	}
	return nil, ErrUnknownKind
}

// walk calls fn for every field in b. fn returns the number of bytes it
// consumed, or 0 to have the field skipped.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

// walkInts decodes zigzag varint fields 1..len(dst) into dst.
func walkInts(b []byte, dst ...*int) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || int(num) > len(dst) {
			return 0, nil
		}
		v, n, err := consumeVarint(num, typ, b)
		*dst[num-1] = int(protowire.DecodeZigZag(v))
		return n, err
	})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(int64(v)))
}

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("field %d: wire type %d, want varint", num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("field %d: wire type %d, want bytes", num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(num protowire.Number, typ protowire.Type, b []byte) (string, int, error) {
	v, n, err := consumeBytes(num, typ, b)
	return string(v), n, err
}
