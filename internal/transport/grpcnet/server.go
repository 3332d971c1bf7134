package grpcnet

import (
	"context"
	"log"
	"net"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"abdkv/internal/msg"
	"abdkv/internal/transport"
)

// Server accepts envelopes for the endpoints registered with it.
type Server struct {
	grpc  *grpc.Server
	boxes cmap.ConcurrentMap
}

// NewServer creates a server with the Deliver service registered.
func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:  grpc.NewServer(opts...),
		boxes: cmap.New(),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Register creates the mailbox for a local endpoint.
func (s *Server) Register(addr msg.Address) (*transport.Mailbox, error) {
	mb := transport.NewMailbox()
	if !s.boxes.SetIfAbsent(string(addr), mb) {
		return nil, errors.Wrapf(transport.ErrDuplicateAddress, "register %s", addr)
	}
	return mb, nil
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("[grpcnet] serving on %s", lis.Addr())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrapf(err, "serve %s", lis.Addr())
	}
	return nil
}

// Stop closes all connections and every registered mailbox.
func (s *Server) Stop() {
	s.grpc.Stop()
	for item := range s.boxes.IterBuffered() {
		item.Val.(*transport.Mailbox).Close()
	}
}

// Deliver puts a remote envelope into the destination mailbox.
func (s *Server) Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	env, err := msg.Unmarshal(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode envelope: %v", err)
	}
	v, ok := s.boxes.Get(string(env.To))
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no endpoint %s", env.To)
	}
	if err := v.(*transport.Mailbox).Put(env); err != nil {
		return nil, status.Errorf(codes.Unavailable, "deliver to %s: %v", env.To, err)
	}
	return &emptypb.Empty{}, nil
}
