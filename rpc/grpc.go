package rpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/osprey-dcs/dp-query/wire"
)

// Fully-qualified method names of the query service.
const (
	MethodQuery       = "/dp.service.query.DpQueryService/Query"
	MethodQueryStream = "/dp.service.query.DpQueryService/QueryStream"
	MethodQueryCursor = "/dp.service.query.DpQueryService/QueryCursor"
)

var (
	serverStreamDesc = &grpc.StreamDesc{
		StreamName:    "QueryStream",
		ServerStreams: true,
	}
	cursorStreamDesc = &grpc.StreamDesc{
		StreamName:    "QueryCursor",
		ServerStreams: true,
		ClientStreams: true,
	}
)

// GRPC adapts a grpc client connection to the Transport seam.
type GRPC struct {
	cc   grpc.ClientConnInterface
	opts []grpc.CallOption
}

var _ Transport = (*GRPC)(nil)

// NewGRPC wraps cc.  Extra call options apply to every call; the codec
// content-subtype is always requested.
func NewGRPC(cc grpc.ClientConnInterface, opts ...grpc.CallOption) *GRPC {
	all := make([]grpc.CallOption, 0, len(opts)+1)
	all = append(all, grpc.CallContentSubtype(CodecName))
	all = append(all, opts...)
	return &GRPC{cc: cc, opts: all}
}

// UnaryQuery implements Transport.
func (g *GRPC) UnaryQuery(ctx context.Context, req *wire.QueryRequest) (*wire.QueryResponse, error) {
	out := new(wire.QueryResponse)
	if err := g.cc.Invoke(ctx, MethodQuery, req, out, g.opts...); err != nil {
		return nil, errors.Wrap(err, "unary query")
	}
	return out, nil
}

// ServerStream implements Transport.
func (g *GRPC) ServerStream(ctx context.Context, req *wire.QueryRequest) (ResponseStream, error) {
	cs, err := g.cc.NewStream(ctx, serverStreamDesc, MethodQueryStream, g.opts...)
	if err != nil {
		return nil, errors.Wrap(err, "opening server stream")
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, errors.Wrap(err, "sending stream request")
	}
	if err := cs.CloseSend(); err != nil {
		return nil, errors.Wrap(err, "closing send side")
	}
	return &grpcResponseStream{cs: cs}, nil
}

// BidiStream implements Transport.
func (g *GRPC) BidiStream(ctx context.Context) (CursorStream, error) {
	cs, err := g.cc.NewStream(ctx, cursorStreamDesc, MethodQueryCursor, g.opts...)
	if err != nil {
		return nil, errors.Wrap(err, "opening cursor stream")
	}
	return &grpcCursorStream{cs: cs}, nil
}

type grpcResponseStream struct {
	cs grpc.ClientStream
}

func (s *grpcResponseStream) Recv() (*wire.QueryResponse, error) {
	out := new(wire.QueryResponse)
	if err := s.cs.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

type grpcCursorStream struct {
	cs grpc.ClientStream
}

func (s *grpcCursorStream) Send(req *wire.StreamRequest) error {
	return s.cs.SendMsg(req)
}

func (s *grpcCursorStream) Recv() (*wire.QueryResponse, error) {
	out := new(wire.QueryResponse)
	if err := s.cs.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *grpcCursorStream) CloseSend() error {
	return s.cs.CloseSend()
}
