package query

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/osprey-dcs/dp-query/assemble"
	"github.com/osprey-dcs/dp-query/buffer"
	"github.com/osprey-dcs/dp-query/config"
	"github.com/osprey-dcs/dp-query/correlate"
	"github.com/osprey-dcs/dp-query/metrics"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/rpc"
	"github.com/osprey-dcs/dp-query/stream"
	"github.com/osprey-dcs/dp-query/table"
	"github.com/osprey-dcs/dp-query/timedomain"
	"github.com/osprey-dcs/dp-query/wire"
)

// Facade orchestrates one request end to end: transport, correlation,
// time-domain resolution, materialization, and table selection.  One
// correlator and one materializer exist per facade; streaming entry
// points are mutually exclusive.
type Facade struct {
	cfg       config.Config
	transport rpc.Transport
	log       *logrus.Logger

	correlator   *correlate.Correlator
	materializer *assemble.Materializer

	// flight serializes the streaming entry points.
	flight chan struct{}
	reqSeq atomic.Uint64
}

// New builds a facade over transport, capturing cfg as an immutable
// snapshot.
func New(transport rpc.Transport, cfg config.Config) (*Facade, error) {
	if err := cfg.Validate(); err != nil {
		return nil, qerr.Wrap(qerr.InvalidRequest, err, "bad configuration")
	}
	log := cfg.Logger()
	f := &Facade{
		cfg:          cfg,
		transport:    transport,
		log:          log,
		correlator:   correlate.New(cfg, log),
		materializer: assemble.NewMaterializer(cfg, log),
		flight:       make(chan struct{}, 1),
	}
	return f, nil
}

// stampID assigns a request id when the caller supplied none.
func (f *Facade) stampID(r *Request) {
	if r.ID == "" {
		r.ID = fmt.Sprintf("q-%d", f.reqSeq.Inc())
	}
}

// acquire takes the single-flight slot, honoring ctx.
func (f *Facade) acquire(ctx context.Context) error {
	select {
	case f.flight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return classify(ctx.Err())
	}
}

func (f *Facade) release() {
	<-f.flight
}

// QueryUnary performs a single blocking RPC and assembles the table.
func (f *Facade) QueryUnary(ctx context.Context, req Request) (table.Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Mode != Unary {
		return nil, qerr.New(qerr.InvalidRequest, "invalid stream mode: unary operation requires the unary mode")
	}
	f.stampID(&req)
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()

	start := time.Now()
	defer func() {
		metrics.QueryLatencyHistogram.WithLabelValues(req.Mode.String()).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := f.deadline(ctx)
	defer cancel()

	resp, err := f.transport.UnaryQuery(ctx, req.toWire())
	if err != nil {
		return nil, f.fail(classify(err))
	}
	if exc := resp.Exceptional; exc != nil {
		return nil, f.fail(qerr.Newf(qerr.Rejected, "request rejected: %s", exc.Message))
	}
	if resp.Data == nil {
		return nil, f.fail(qerr.New(qerr.TransportError, "response carries neither data nor exceptional result"))
	}
	if err := f.correlator.Process(ctx, resp.Data); err != nil {
		return nil, f.fail(err)
	}
	return f.assemble(ctx)
}

// QueryStream fans one logical request over a streaming RPC and
// assembles the table.
func (f *Facade) QueryStream(ctx context.Context, req Request) (table.Table, error) {
	return f.QueryStreamDecomposed(ctx, []Request{req})
}

// QueryStreamDecomposed accepts a caller-supplied decomposition: each
// request is driven by its own stream worker, all collected into one
// buffer.
func (f *Facade) QueryStreamDecomposed(ctx context.Context, reqs []Request) (table.Table, error) {
	if len(reqs) == 0 {
		return nil, qerr.New(qerr.InvalidRequest, "empty request: no decomposition")
	}
	mode := reqs[0].Mode
	for i := range reqs {
		if err := reqs[i].validateForStreaming(); err != nil {
			return nil, err
		}
		if reqs[i].Mode != mode {
			return nil, qerr.New(qerr.InvalidRequest, "invalid stream mode: mixed modes in one decomposition")
		}
		f.stampID(&reqs[i])
	}
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()

	start := time.Now()
	defer func() {
		metrics.QueryLatencyHistogram.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := f.deadline(ctx)
	defer cancel()

	buf := buffer.New(f.cfg.Data.BufferCapacity)
	ch := stream.NewChannel(f.transport, buf, streamMode(mode),
		f.cfg.WorkerLimit(), 0, f.log)

	wireReqs := make([]*wire.QueryRequest, len(reqs))
	for i := range reqs {
		wireReqs[i] = reqs[i].toWire()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ch.Run(gctx, wireReqs); err != nil {
			// Discard in-flight payloads so the drain ends promptly.
			buf.ShutdownNow()
			return err
		}
		return buf.Shutdown(gctx)
	})
	g.Go(func() error {
		return f.correlator.Drain(gctx, buf)
	})
	if err := g.Wait(); err != nil {
		return nil, f.fail(classify(err))
	}
	return f.assemble(ctx)
}

// QueryRawStream returns an unstarted raw-stream handle.  The caller
// starts it, consumes decoded payloads from its buffer, and awaits it;
// the facade's single-flight slot is held until the handle completes.
func (f *Facade) QueryRawStream(ctx context.Context, req Request) (*stream.Handle, error) {
	if err := req.validateForStreaming(); err != nil {
		return nil, err
	}
	f.stampID(&req)
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}

	buf := buffer.New(f.cfg.Data.BufferCapacity)
	ch := stream.NewChannel(f.transport, buf, streamMode(req.Mode),
		f.cfg.WorkerLimit(), f.cfg.Timeout.Limit, f.log)
	h := stream.NewHandle(ch, buf, []*wire.QueryRequest{req.toWire()}, f.release)
	return h, nil
}

// assemble runs correlation output through the time-domain processor,
// materializes every super domain, aggregates, and selects the table
// flavor.  The correlator is reset afterwards so the facade is
// reusable.
func (f *Facade) assemble(ctx context.Context) (table.Table, error) {
	blocks, err := f.correlator.Result()
	if err != nil {
		return nil, f.fail(err)
	}
	f.correlator.Reset()

	res := timedomain.Partition(blocks)
	sampled := make([]*assemble.SampledBlock, 0, len(res.Disjoint)+len(res.Supers))
	for _, blk := range res.Disjoint {
		sb, err := assemble.FromBlock(blk)
		if err != nil {
			return nil, f.fail(err)
		}
		sampled = append(sampled, sb)
	}
	for _, sd := range res.Supers {
		sb, err := f.materializer.Materialize(ctx, sd)
		if err != nil {
			return nil, f.fail(err)
		}
		sampled = append(sampled, sb)
	}

	agg, err := table.NewAggregate(sampled)
	if err != nil {
		return nil, f.fail(err)
	}
	tbl, err := agg.Table(f.cfg.Table)
	if err != nil {
		return nil, f.fail(err)
	}
	f.log.WithFields(logrus.Fields{
		"rows":    agg.RowCount(),
		"columns": agg.ColumnCount(),
	}).Debug("table assembled")
	return tbl, nil
}

// deadline applies the configured global timeout.
func (f *Facade) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.cfg.Timeout.Limit > 0 {
		return context.WithTimeout(ctx, f.cfg.Timeout.Limit)
	}
	return context.WithCancel(ctx)
}

// fail records the failure kind and resets the correlator so the next
// request starts clean.
func (f *Facade) fail(err error) error {
	metrics.ErrorCount.WithLabelValues(qerr.KindOf(err).String()).Inc()
	f.correlator.Reset()
	return err
}

// classify maps context terminations onto the error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case qerr.KindOf(err) != qerr.Unknown:
		return err
	case err == context.DeadlineExceeded:
		return qerr.Wrap(qerr.Timeout, err, "operation timed out")
	case err == context.Canceled:
		return qerr.Wrap(qerr.Cancelled, err, "operation cancelled")
	}
	return qerr.Wrap(qerr.TransportError, err, "operation failed")
}

func streamMode(m Mode) stream.Mode {
	if m == BidiStream {
		return stream.BidiStream
	}
	return stream.ServerStream
}
