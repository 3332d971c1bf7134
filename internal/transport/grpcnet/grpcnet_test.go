package grpcnet

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"abdkv/internal/msg"
	"abdkv/internal/transport"
)

func newBufNetwork(t *testing.T, opts Options) *Network {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	opts.DialOptions = append(opts.DialOptions, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	n := NewNetwork(lis, opts)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func receive(t *testing.T, mb *transport.Mailbox) msg.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := mb.Receive(ctx)
	require.NoError(t, err)
	return env
}

func TestNetwork_DeliversInSendOrder(t *testing.T) {
	n := newBufNetwork(t, Options{Fallback: "passthrough:///bufnet"})
	mb, err := n.Register(msg.NodeAddress(1))
	require.NoError(t, err)

	const count = 200
	for i := 0; i < count; i++ {
		require.NoError(t, n.Send(msg.Envelope{
			From: msg.NodeAddress(0),
			To:   msg.NodeAddress(1),
			Body: msg.ReadResponse{Value: i, Timestamp: i / 2, Seq: i},
		}))
	}

	for i := 0; i < count; i++ {
		env := receive(t, mb)
		assert.Equal(t, msg.NodeAddress(0), env.From)
		assert.Equal(t, msg.ReadResponse{Value: i, Timestamp: i / 2, Seq: i}, env.Body)
	}
}

func TestNetwork_ConfigMessagesRoundTrip(t *testing.T) {
	n := newBufNetwork(t, Options{Book: map[msg.Address]string{msg.MonitorAddress: "passthrough:///bufnet"}, Fallback: "passthrough:///bufnet"})
	node, err := n.Register(msg.NodeAddress(0))
	require.NoError(t, err)
	mon, err := n.Register(msg.MonitorAddress)
	require.NoError(t, err)

	pc := msg.PeerConfig{Peers: []msg.Address{"p0", "p1", "p2"}, Monitor: msg.MonitorAddress}
	require.NoError(t, n.Send(msg.Envelope{From: msg.CoordinatorAddress, To: "p0", Body: pc}))
	require.NoError(t, n.Send(msg.Envelope{From: "p0", To: msg.MonitorAddress, Body: msg.CompletionSignal{}}))

	assert.Equal(t, pc, receive(t, node).Body)
	assert.Equal(t, msg.CompletionSignal{}, receive(t, mon).Body)
}

func TestTransport_UnknownAddress(t *testing.T) {
	tr := NewTransport(Options{Book: map[msg.Address]string{"p0": "passthrough:///bufnet"}})
	defer tr.Close()

	err := tr.Send(msg.Envelope{From: "p0", To: "p9", Body: msg.LaunchSignal{}})
	assert.True(t, errors.Is(err, transport.ErrUnknownAddress))
}

func TestTransport_SendAfterClose(t *testing.T) {
	tr := NewTransport(Options{Fallback: "passthrough:///bufnet"})
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err := tr.Send(msg.Envelope{From: "p0", To: "p1", Body: msg.LaunchSignal{}})
	assert.True(t, errors.Is(err, transport.ErrClosed))
}

func TestServer_Register(t *testing.T) {
	s := NewServer()
	_, err := s.Register("p0")
	require.NoError(t, err)
	_, err = s.Register("p0")
	assert.True(t, errors.Is(err, transport.ErrDuplicateAddress))
}

func TestServer_DeliverErrors(t *testing.T) {
	s := NewServer()
	_, err := s.Register("p0")
	require.NoError(t, err)

	good, err := msg.Marshal(msg.Envelope{From: "p1", To: "p0", Body: msg.Ack{Value: 1, Timestamp: 1}})
	require.NoError(t, err)
	unknown, err := msg.Marshal(msg.Envelope{From: "p1", To: "p7", Body: msg.Ack{Value: 1, Timestamp: 1}})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
		code    codes.Code
	}{
		{"valid", good, codes.OK},
		{"garbage", []byte{0xff, 0xff, 0xff}, codes.InvalidArgument},
		{"empty", nil, codes.InvalidArgument},
		{"unknown destination", unknown, codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Deliver(context.Background(), &wrapperspb.BytesValue{Value: tt.payload})
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	s.Stop()
	_, err = s.Deliver(context.Background(), &wrapperspb.BytesValue{Value: good})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
