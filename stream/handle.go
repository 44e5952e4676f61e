package stream

import (
	"context"
	"sync"

	"github.com/osprey-dcs/dp-query/buffer"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/wire"
)

// Handle is the raw-stream surface: the caller starts the channel,
// consumes decoded payloads from the buffer, and awaits completion.  No
// correlation is performed.
type Handle struct {
	ch   *Channel
	buf  *buffer.Buffer
	reqs []*wire.QueryRequest

	startOnce sync.Once
	done      chan struct{}
	err       error
	onDone    func()
}

func newHandle(ch *Channel, buf *buffer.Buffer, reqs []*wire.QueryRequest, onDone func()) *Handle {
	return &Handle{
		ch:     ch,
		buf:    buf,
		reqs:   reqs,
		done:   make(chan struct{}),
		onDone: onDone,
	}
}

// Start launches the stream workers.  Subsequent calls are no-ops.
func (h *Handle) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		go func() {
			h.err = h.ch.Run(ctx, h.reqs)
			if h.err != nil {
				h.buf.ShutdownNow()
			} else {
				h.err = h.buf.Shutdown(ctx)
			}
			close(h.done)
			if h.onDone != nil {
				h.onDone()
			}
		}()
	})
}

// Buffer returns the payload supplier.  Consumers Take until ErrClosed.
func (h *Handle) Buffer() *buffer.Buffer {
	return h.buf
}

// Await blocks until every worker reached a terminal state and returns
// the overall error, if any.
func (h *Handle) Await() error {
	<-h.done
	return h.err
}

// Err returns the overall error after completion, nil before.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel aborts the stream and discards buffered payloads.  On a handle
// that was never started it completes the handle immediately so that
// Await returns and the completion callback still runs.
func (h *Handle) Cancel() {
	h.ch.ShutdownNow()
	h.buf.ShutdownNow()
	h.startOnce.Do(func() {
		h.err = qerr.New(qerr.Cancelled, "raw stream cancelled before start")
		close(h.done)
		if h.onDone != nil {
			h.onDone()
		}
	})
}

// Workers exposes per-worker status.
func (h *Handle) Workers() []*Worker {
	return h.ch.Workers()
}

// NewHandle builds an unstarted raw-stream handle.  onDone, if non-nil,
// runs once after completion; the facade uses it to release its
// single-flight slot.
func NewHandle(ch *Channel, buf *buffer.Buffer, reqs []*wire.QueryRequest, onDone func()) *Handle {
	return newHandle(ch, buf, reqs, onDone)
}
