// Package stream drives the streaming RPCs for one request: a Worker per
// stream, a Channel that fans a request list across workers into the
// shared message buffer, and a Handle for callers that consume the raw
// buffer themselves.
package stream

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/osprey-dcs/dp-query/metrics"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/rpc"
	"github.com/osprey-dcs/dp-query/wire"
)

// Mode selects the streaming RPC variant a worker drives.
type Mode int

// Worker stream modes.
const (
	ServerStream Mode = iota
	BidiStream
)

func (m Mode) String() string {
	if m == BidiStream {
		return "bidi"
	}
	return "server"
}

// State is a worker's lifecycle position.
type State int32

// Worker states.  Receiving and Acknowledging alternate on a cursor
// stream; the last three are terminal.
const (
	Created State = iota
	Started
	Receiving
	Acknowledging
	Completed
	Rejected
	Errored
)

var stateNames = map[State]string{
	Created:       "created",
	Started:       "started",
	Receiving:     "receiving",
	Acknowledging: "acknowledging",
	Completed:     "completed",
	Rejected:      "rejected",
	Errored:       "errored",
}

func (s State) String() string { return stateNames[s] }

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool { return s >= Completed }

// Result is a worker's terminal status.
type Result struct {
	OK      bool
	Message string
	Cause   error
}

// Sink receives each accepted data payload.  Sinks may block; the
// buffer's back-pressure discipline is the only permitted delay.
type Sink func(ctx context.Context, data *wire.QueryData) error

// Worker drives exactly one streaming RPC for one request.
type Worker struct {
	label     string
	req       *wire.QueryRequest
	mode      Mode
	transport rpc.Transport
	sink      Sink
	log       *logrus.Logger

	state     atomic.Int32
	started   atomic.Bool
	completed atomic.Bool
	responses atomic.Int64

	// result is written once, before completed flips true.
	result Result
}

// NewWorker builds a worker; Run drives it.
func NewWorker(label string, req *wire.QueryRequest, mode Mode, transport rpc.Transport, sink Sink, log *logrus.Logger) *Worker {
	return &Worker{
		label:     label,
		req:       req,
		mode:      mode,
		transport: transport,
		sink:      sink,
		log:       log,
	}
}

// State returns the worker's current state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Started reports whether Run has begun.
func (w *Worker) Started() bool { return w.started.Load() }

// Completed reports whether the worker reached a terminal state.
func (w *Worker) Completed() bool { return w.completed.Load() }

// ResponseCount returns the number of data payloads accepted so far.
func (w *Worker) ResponseCount() int64 { return w.responses.Load() }

// Result returns the terminal status.  Valid once Completed is true.
func (w *Worker) Result() Result { return w.result }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

func (w *Worker) finish(s State, res Result, err error) error {
	w.result = res
	w.setState(s)
	w.completed.Store(true)
	if s != Completed {
		metrics.WorkerFailureCount.WithLabelValues(s.String()).Inc()
		w.log.WithField("worker", w.label).WithField("state", s.String()).
			Debug(res.Message)
	}
	return err
}

// Run drives the stream to a terminal state and returns nil only on a
// normal close.  Cancellation is cooperative: the context is checked
// between responses.
func (w *Worker) Run(ctx context.Context) error {
	w.started.Store(true)
	w.setState(Started)

	var (
		recv    func() (*wire.QueryResponse, error)
		ack     func() error
		release func()
	)
	switch w.mode {
	case BidiStream:
		cs, err := w.transport.BidiStream(ctx)
		if err != nil {
			return w.transportFailure(ctx, err)
		}
		if err := cs.Send(&wire.StreamRequest{Query: w.req}); err != nil {
			return w.transportFailure(ctx, err)
		}
		recv = cs.Recv
		ack = func() error { return cs.Send(&wire.StreamRequest{Cursor: wire.CursorNext}) }
		release = func() {
			// Best-effort: the peer may already be gone.
			_ = cs.Send(&wire.StreamRequest{Cursor: wire.CursorFinish})
			_ = cs.CloseSend()
		}
	default:
		rs, err := w.transport.ServerStream(ctx, w.req)
		if err != nil {
			return w.transportFailure(ctx, err)
		}
		recv = rs.Recv
	}
	if release != nil {
		defer release()
	}

	for {
		if err := ctx.Err(); err != nil {
			return w.transportFailure(ctx, err)
		}
		w.setState(Receiving)
		resp, err := recv()
		if err == io.EOF {
			return w.finish(Completed, Result{OK: true}, nil)
		}
		if err != nil {
			return w.transportFailure(ctx, err)
		}
		metrics.ResponseCount.WithLabelValues(w.mode.String()).Inc()

		if exc := resp.Exceptional; exc != nil {
			if w.responses.Load() == 0 {
				err := qerr.Newf(qerr.Rejected, "request rejected: %s", exc.Message)
				return w.finish(Rejected, Result{Message: exc.String(), Cause: err}, err)
			}
			err := qerr.Newf(qerr.TransportError, "stream failed mid-flight: %s", exc.Message)
			return w.finish(Errored, Result{Message: exc.String(), Cause: err}, err)
		}
		if resp.Data == nil {
			err := qerr.New(qerr.TransportError, "response carries neither data nor exceptional result")
			return w.finish(Errored, Result{Message: err.Message, Cause: err}, err)
		}

		if err := w.sink(ctx, resp.Data); err != nil {
			return w.sinkFailure(err)
		}
		w.responses.Inc()

		if ack != nil {
			w.setState(Acknowledging)
			if err := ack(); err != nil {
				return w.transportFailure(ctx, err)
			}
		}
	}
}

// sinkFailure classifies a refused forward: deadline overruns surface
// as Timeout, everything else as Cancelled.
func (w *Worker) sinkFailure(err error) error {
	var wrapped error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		wrapped = qerr.Wrap(qerr.Timeout, err, "payload sink timed out")
	default:
		wrapped = qerr.Wrap(qerr.Cancelled, err, "payload sink refused message")
	}
	return w.finish(Errored, Result{Message: wrapped.Error(), Cause: err}, wrapped)
}

// transportFailure classifies err and moves the worker to Errored.
func (w *Worker) transportFailure(ctx context.Context, err error) error {
	var wrapped error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		wrapped = qerr.Wrap(qerr.Timeout, err, "stream timed out")
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		wrapped = qerr.Wrap(qerr.Cancelled, err, "stream cancelled")
	case qerr.KindOf(err) != qerr.Unknown:
		wrapped = err
	default:
		wrapped = qerr.Wrap(qerr.TransportError, err, "stream transport failed")
	}
	return w.finish(Errored, Result{Message: wrapped.Error(), Cause: err}, wrapped)
}
