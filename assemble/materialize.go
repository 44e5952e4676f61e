package assemble

import (
	"context"
	"time"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/osprey-dcs/dp-query/config"
	"github.com/osprey-dcs/dp-query/correlate"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/timedomain"
	"github.com/osprey-dcs/dp-query/value"
)

// Materializer builds one dense sampled block per super domain.  Fatal
// errors abort the build; no partial block is ever returned.
type Materializer struct {
	cfg config.Config
	log *logrus.Logger
}

// NewMaterializer captures the configuration snapshot.
func NewMaterializer(cfg config.Config, log *logrus.Logger) *Materializer {
	return &Materializer{cfg: cfg, log: log}
}

// row collects one timestamp's contributed cells by source name.
type row struct {
	ts    time.Time
	cells map[string]value.Value
}

// FromBlock materializes a single correlated block directly: its
// matrix is already dense, so only the transpose is needed.
func FromBlock(b *correlate.Block) (*SampledBlock, error) {
	cols := b.Columns()
	pvs := make([]string, 0, len(cols))
	types := make(map[string]value.Type, len(cols))
	for _, col := range cols {
		t, err := checkHomogeneous(col.Source, col.Values)
		if err != nil {
			return nil, err
		}
		pvs = append(pvs, col.Source)
		types[col.Source] = t
	}
	times := b.Timestamps()
	if len(times) == 0 {
		return nil, qerr.New(qerr.BadColumnSize, "correlated block promises zero samples")
	}
	matrix := make([][]value.Value, len(times))
	for i := range times {
		matrixRow := make([]value.Value, len(cols))
		for j := range cols {
			matrixRow[j] = cols[j].Values[i]
		}
		matrix[i] = matrixRow
	}
	return newSampledBlock(times, pvs, types, matrix), nil
}

// Materialize builds the dense sampled block covering the union of
// timestamps and PVs of a super domain.
func (m *Materializer) Materialize(ctx context.Context, sd *timedomain.SuperDomain) (*SampledBlock, error) {
	blocks := sd.Blocks()

	// PV union in first-appearance order, with per-PV type agreement
	// across all contributing blocks.
	var pvs []string
	types := make(map[string]value.Type)
	for _, blk := range blocks {
		for _, col := range blk.Columns() {
			t, err := checkHomogeneous(col.Source, col.Values)
			if err != nil {
				return nil, err
			}
			prev, seen := types[col.Source]
			if !seen {
				pvs = append(pvs, col.Source)
				types[col.Source] = t
				continue
			}
			if prev == value.TypeInvalid {
				types[col.Source] = t
			} else if t != value.TypeInvalid && t != prev {
				return nil, qerr.Newf(qerr.InconsistentType,
					"PV %q contributed as %v and %v within one super domain", col.Source, prev, t)
			}
		}
	}

	// Row assembly keyed by timestamp.  A (timestamp, source) pair
	// contributed twice is fatal unless coalescing is enabled and the
	// values are equal.
	rows := btree.NewG(8, func(a, b *row) bool { return a.ts.Before(b.ts) })
	for _, blk := range blocks {
		times := blk.Timestamps()
		for _, col := range blk.Columns() {
			for k, ts := range times {
				r, ok := rows.Get(&row{ts: ts})
				if !ok {
					r = &row{ts: ts, cells: make(map[string]value.Value)}
					rows.ReplaceOrInsert(r)
				}
				if prev, dup := r.cells[col.Source]; dup {
					if m.cfg.Data.CoalesceDuplicates && value.Equal(prev, col.Values[k]) {
						continue
					}
					return nil, qerr.Newf(qerr.DuplicateCell,
						"PV %q contributed twice at %s", col.Source, ts.Format(time.RFC3339Nano))
				}
				r.cells[col.Source] = col.Values[k]
			}
		}
	}

	// Ordered timestamp vector from the row map's key set.
	ordered := make([]*row, 0, rows.Len())
	times := make([]time.Time, 0, rows.Len())
	rows.Ascend(func(r *row) bool {
		ordered = append(ordered, r)
		times = append(times, r.ts)
		return true
	})
	if len(times) == 0 {
		return nil, qerr.New(qerr.Unknown, "super domain produced no rows")
	}

	// Phantom fill and transpose, one worker per PV column: every row
	// lacking a PV gets the absent sentinel.
	matrix := make([][]value.Value, len(ordered))
	for i := range matrix {
		matrix[i] = make([]value.Value, len(pvs))
	}
	fill := func(j int) {
		name := pvs[j]
		for i, r := range ordered {
			if v, ok := r.cells[name]; ok {
				matrix[i][j] = v
			} else {
				matrix[i][j] = value.Absent
			}
		}
	}
	if m.cfg.Parallel(len(pvs)) {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(m.cfg.WorkerLimit())
		for j := range pvs {
			j := j
			g.Go(func() error {
				fill(j)
				return nil
			})
		}
		// Workers cannot fail; Wait only joins them.
		_ = g.Wait()
	} else {
		for j := range pvs {
			fill(j)
		}
	}

	m.log.WithFields(logrus.Fields{
		"blocks": len(blocks),
		"rows":   len(times),
		"pvs":    len(pvs),
	}).Debug("super domain materialized")
	return newSampledBlock(times, pvs, types, matrix), nil
}
