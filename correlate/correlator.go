package correlate

import (
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/osprey-dcs/dp-query/buffer"
	"github.com/osprey-dcs/dp-query/config"
	"github.com/osprey-dcs/dp-query/metrics"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/wire"
)

// Correlator transforms a stream of response-data messages into a
// sorted set of correlated blocks.  Instances are reusable after
// Reset.
type Correlator struct {
	cfg config.Config
	log *logrus.Logger

	mu     sync.Mutex
	blocks map[wire.ProvenanceKey]*Block
	seq    uint64

	bytes atomic.Int64
}

// New builds a correlator with the given configuration snapshot.
func New(cfg config.Config, log *logrus.Logger) *Correlator {
	return &Correlator{
		cfg:    cfg,
		log:    log,
		blocks: make(map[wire.ProvenanceKey]*Block),
	}
}

// Process folds every bucket of one response message into the block
// set.  Buckets of a single message may be folded in parallel above the
// configured pivot size.
func (c *Correlator) Process(ctx context.Context, data *wire.QueryData) error {
	c.bytes.Add(data.ByteSize())
	if c.cfg.Parallel(len(data.Buckets)) {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.WorkerLimit())
		for i := range data.Buckets {
			b := &data.Buckets[i]
			g.Go(func() error { return c.insert(b) })
		}
		return g.Wait()
	}
	for i := range data.Buckets {
		if err := c.insert(&data.Buckets[i]); err != nil {
			return err
		}
	}
	return nil
}

// Drain consumes messages from buf until it closes, folding each into
// the block set.
func (c *Correlator) Drain(ctx context.Context, buf *buffer.Buffer) error {
	for {
		msg, err := buf.Take(ctx)
		if err == buffer.ErrClosed {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.Process(ctx, msg); err != nil {
			return err
		}
	}
}

// insert folds one bucket: atomic get-or-create on the provenance key,
// then a per-block append.  Two concurrent creators of the same key
// resolve to a single block.
func (c *Correlator) insert(b *wire.RawBucket) error {
	key, err := b.Provenance()
	if err != nil {
		metrics.ErrorCount.WithLabelValues(qerr.UnsupportedProvenance.String()).Inc()
		return err
	}

	c.mu.Lock()
	blk, ok := c.blocks[key]
	if !ok {
		c.seq++
		blk = newBlock(c.seq, key, b)
		c.blocks[key] = blk
		c.mu.Unlock()
		metrics.BucketCount.Inc()
		return nil
	}
	c.mu.Unlock()

	blk.append(b)
	metrics.BucketCount.Inc()
	return nil
}

// Result returns the block set sorted by start time (creation order on
// ties) and, when error checking is enabled, runs the verification
// passes.  The correlator keeps its state; call Reset to reuse it.
func (c *Correlator) Result() ([]*Block, error) {
	c.mu.Lock()
	tree := btree.NewG(8, func(a, b *Block) bool { return a.Less(b) })
	for _, blk := range c.blocks {
		tree.ReplaceOrInsert(blk)
	}
	c.mu.Unlock()

	out := make([]*Block, 0, tree.Len())
	tree.Ascend(func(blk *Block) bool {
		out = append(out, blk)
		return true
	})

	if c.cfg.Data.ErrorChecking {
		if err := verify(out); err != nil {
			metrics.ErrorCount.WithLabelValues(qerr.KindOf(err).String()).Inc()
			return nil, err
		}
	}
	c.log.WithField("blocks", len(out)).Debug("correlation complete")
	return out, nil
}

// ProcessedBytes returns the approximate payload bytes folded since the
// last Reset.
func (c *Correlator) ProcessedBytes() int64 {
	return c.bytes.Load()
}

// Reset clears the block set and zeroes the processed-bytes counter.
func (c *Correlator) Reset() {
	c.mu.Lock()
	c.blocks = make(map[wire.ProvenanceKey]*Block)
	c.seq = 0
	c.mu.Unlock()
	c.bytes.Store(0)
}

// verify runs the toggleable correlation checks: column lengths match
// the provenance sample count, source names are unique per block, and
// start times strictly increase across the sorted set.
func verify(blocks []*Block) error {
	for _, blk := range blocks {
		want := blk.SampleCount()
		seen := make(map[string]struct{})
		for _, col := range blk.Columns() {
			if len(col.Values) != want {
				return qerr.Newf(qerr.BadColumnSize,
					"column %q has %d samples, provenance promises %d", col.Source, len(col.Values), want)
			}
			if _, dup := seen[col.Source]; dup {
				return qerr.Newf(qerr.DuplicateSource,
					"source %q appears twice in one correlated block", col.Source)
			}
			seen[col.Source] = struct{}{}
		}
	}
	for i := 1; i < len(blocks); i++ {
		if !blocks[i-1].Start().Before(blocks[i].Start()) {
			return qerr.Newf(qerr.BadOrdering,
				"block start times not strictly increasing at index %d", i)
		}
	}
	return nil
}
