package grpcnet

import (
	"context"
	"log"
	"net"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"abdkv/internal/msg"
	"abdkv/internal/transport"
)

// Options configures outbound delivery.
type Options struct {
	// Book maps endpoint addresses to gRPC targets.
	Book map[msg.Address]string
	// Fallback is the target for addresses missing from Book. Empty means
	// such addresses are unknown.
	Fallback string
	// DialOptions are appended to the default insecure credentials.
	DialOptions []grpc.DialOption
}

type outbound struct {
	to    msg.Address
	queue *transport.Mailbox
	conn  *grpc.ClientConn
}

// Transport sends envelopes to remote Servers.
type Transport struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	conns  map[string]*grpc.ClientConn
	links  map[msg.Address]*outbound
}

// NewTransport creates a transport. Connections are made lazily on first send.
func NewTransport(opts Options) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[string]*grpc.ClientConn),
		links:  make(map[msg.Address]*outbound),
	}
}

func (t *Transport) target(addr msg.Address) (string, bool) {
	if target, ok := t.opts.Book[addr]; ok {
		return target, true
	}
	return t.opts.Fallback, t.opts.Fallback != ""
}

// Send queues env for delivery and returns without waiting for the call.
func (t *Transport) Send(env msg.Envelope) error {
	link, err := t.link(env.To)
	if err != nil {
		return errors.Wrapf(err, "send %s", env)
	}
	if err := link.queue.Put(env); err != nil {
		return errors.Wrapf(err, "send %s", env)
	}
	return nil
}

func (t *Transport) link(to msg.Address) (*outbound, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, transport.ErrClosed
	}
	if l, ok := t.links[to]; ok {
		return l, nil
	}

	target, ok := t.target(to)
	if !ok {
		return nil, transport.ErrUnknownAddress
	}
	conn, ok := t.conns[target]
	if !ok {
		dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, t.opts.DialOptions...)
		var err error
		conn, err = grpc.NewClient(target, dialOpts...)
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s", target)
		}
		t.conns[target] = conn
	}

	l := &outbound{to: to, queue: transport.NewMailbox(), conn: conn}
	t.links[to] = l
	t.wg.Add(1)
	go t.pump(l)
	return l, nil
}

// pump issues one Deliver call at a time for a single destination.
func (t *Transport) pump(l *outbound) {
	defer t.wg.Done()
	for {
		env, err := l.queue.Receive(t.ctx)
		if err != nil {
			return
		}
		b, err := msg.Marshal(env)
		if err != nil {
			log.Printf("[grpcnet] dropping %s: %v", env, err)
			continue
		}
		err = l.conn.Invoke(t.ctx, deliverMethod, &wrapperspb.BytesValue{Value: b}, new(emptypb.Empty), grpc.WaitForReady(true))
		if err != nil && t.ctx.Err() == nil {
			log.Printf("[grpcnet] deliver %s: %v", env, err)
		}
	}
}

// Close stops all outbound queues. Queued envelopes that were not yet
// delivered are dropped.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	for _, l := range t.links {
		l.queue.Close()
	}
	t.wg.Wait()

	var firstErr error
	for target, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close %s", target)
		}
	}
	return firstErr
}

// Network serves local endpoints and sends to remote ones. It satisfies
// transport.Network.
type Network struct {
	*Server
	*Transport

	lis    net.Listener
	served chan error
}

// NewNetwork starts a Server on lis and pairs it with a Transport.
func NewNetwork(lis net.Listener, opts Options) *Network {
	n := &Network{
		Server:    NewServer(),
		Transport: NewTransport(opts),
		lis:       lis,
		served:    make(chan error, 1),
	}
	go func() {
		n.served <- n.Server.Serve(lis)
	}()
	return n
}

// Addr returns the listening address.
func (n *Network) Addr() net.Addr {
	return n.lis.Addr()
}

// Send delivers env through the outbound Transport.
func (n *Network) Send(env msg.Envelope) error {
	return n.Transport.Send(env)
}

// Close shuts the transport and then the server down.
func (n *Network) Close() error {
	err := n.Transport.Close()
	n.Server.Stop()
	if serveErr := <-n.served; serveErr != nil && err == nil {
		err = serveErr
	}
	return err
}

var _ transport.Network = (*Network)(nil)
