package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/osprey-dcs/dp-query/buffer"
	"github.com/osprey-dcs/dp-query/rpc"
	"github.com/osprey-dcs/dp-query/wire"
)

// Channel multiplexes a request decomposition across a pool of workers,
// collecting every data payload into one message buffer.  Payload order
// across workers is arbitrary.
type Channel struct {
	transport  rpc.Transport
	buf        *buffer.Buffer
	mode       Mode
	maxWorkers int
	timeout    time.Duration
	log        *logrus.Logger

	workers []*Worker
	cancel  context.CancelFunc
}

// NewChannel builds a channel writing into buf.  maxWorkers is a soft
// cap: extra requests queue until a pool slot frees.  A zero timeout
// disables the global deadline.
func NewChannel(transport rpc.Transport, buf *buffer.Buffer, mode Mode, maxWorkers int, timeout time.Duration, log *logrus.Logger) *Channel {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Channel{
		transport:  transport,
		buf:        buf,
		mode:       mode,
		maxWorkers: maxWorkers,
		timeout:    timeout,
		log:        log,
	}
}

// Run launches one worker per request and awaits them all.  The first
// non-success worker cause is reported as the overall failure; the rest
// are cancelled cooperatively.
func (c *Channel) Run(ctx context.Context, reqs []*wire.QueryRequest) error {
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	c.cancel = cancel
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	c.workers = make([]*Worker, 0, len(reqs))
	for i, req := range reqs {
		label := req.RequestID
		if label == "" {
			label = fmt.Sprintf("worker-%d", i)
		}
		w := NewWorker(label, req, c.mode, c.transport, c.offer, c.log)
		c.workers = append(c.workers, w)
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

// offer is the worker sink: it forwards one payload into the buffer,
// blocking under the buffer's back-pressure discipline.
func (c *Channel) offer(ctx context.Context, data *wire.QueryData) error {
	return c.buf.Offer(ctx, data)
}

// ShutdownNow cancels every worker.  Workers observe the cancellation
// between responses and terminate within the cooperative window.
func (c *Channel) ShutdownNow() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Workers returns the launched workers, for status inspection.
func (c *Channel) Workers() []*Worker {
	return c.workers
}
