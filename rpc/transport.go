// Package rpc defines the transport seam between the query pipeline and
// the service, plus a gRPC-backed implementation.  The pipeline only
// sees the interfaces here; tests substitute in-memory fakes.
package rpc

import (
	"context"

	"github.com/osprey-dcs/dp-query/wire"
)

// ResponseStream is the receive side of a server-streaming call.  Recv
// returns io.EOF after the server closes the stream normally.
type ResponseStream interface {
	Recv() (*wire.QueryResponse, error)
}

// CursorStream is a bidirectional cursor stream.  The client sends the
// initial query, then one CursorNext acknowledgement after each received
// response, then CursorFinish before CloseSend.
type CursorStream interface {
	Send(*wire.StreamRequest) error
	Recv() (*wire.QueryResponse, error)
	CloseSend() error
}

// Transport is the wire dependency of the pipeline.
type Transport interface {
	// UnaryQuery performs a single blocking request.
	UnaryQuery(ctx context.Context, req *wire.QueryRequest) (*wire.QueryResponse, error)
	// ServerStream opens a unidirectional response stream for req.
	ServerStream(ctx context.Context, req *wire.QueryRequest) (ResponseStream, error)
	// BidiStream opens a cursor stream.  The caller sends the initial
	// request itself.
	BidiStream(ctx context.Context) (CursorStream, error)
}
