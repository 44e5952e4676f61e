// Package table holds the ordered, disjoint sampled blocks of one
// request and presents them as a static or lazy tabular view.
package table

import (
	"sort"
	"time"

	"github.com/osprey-dcs/dp-query/assemble"
	"github.com/osprey-dcs/dp-query/config"
	"github.com/osprey-dcs/dp-query/metrics"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/value"
)

// Column is one named, typed column of a table.
type Column struct {
	Name   string
	Type   value.Type
	Values []value.Value
}

// Table is the tabular result surface.
type Table interface {
	RowCount() int
	ColumnCount() int
	ColumnNames() []string
	Timestamps() []time.Time
	Timestamp(row int) (time.Time, error)
	Column(col int) (Column, error)
	ColumnByName(name string) (Column, error)
	HasColumn(name string) bool
	Value(row, col int) (value.Value, error)
}

// Errors shared by both table flavors.
var (
	errRowRange = qerr.New(qerr.InvalidRequest, "row index out of range")
	errColRange = qerr.New(qerr.InvalidRequest, "column index out of range")
)

// Aggregate is the ordered sequence of sampled blocks with pairwise
// disjoint time ranges.
type Aggregate struct {
	blocks     []*assemble.SampledBlock
	rowOffsets []int
	pvs        []string
	index      map[string]int
	types      map[string]value.Type
}

// NewAggregate sorts the blocks by start time and validates pairwise
// disjointness and per-PV type agreement across blocks.
func NewAggregate(blocks []*assemble.SampledBlock) (*Aggregate, error) {
	sorted := make([]*assemble.SampledBlock, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start().Before(sorted[j].Start())
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Interval().Intersects(sorted[i].Interval()) {
			return nil, qerr.Newf(qerr.BadOrdering,
				"sampled blocks %d and %d overlap", i-1, i)
		}
	}

	a := &Aggregate{
		blocks:     sorted,
		rowOffsets: make([]int, len(sorted)),
		index:      make(map[string]int),
		types:      make(map[string]value.Type),
	}
	rows := 0
	for i, blk := range sorted {
		a.rowOffsets[i] = rows
		rows += blk.RowCount()
		for _, name := range blk.PvNames() {
			t, _ := blk.TypeOf(name)
			prev, seen := a.types[name]
			if !seen {
				a.index[name] = len(a.pvs)
				a.pvs = append(a.pvs, name)
				a.types[name] = t
				continue
			}
			if prev == value.TypeInvalid {
				a.types[name] = t
			} else if t != value.TypeInvalid && t != prev {
				return nil, qerr.Newf(qerr.InconsistentType,
					"PV %q typed %v and %v across sampled blocks", name, prev, t)
			}
		}
	}
	return a, nil
}

// Blocks returns the ordered sampled blocks.
func (a *Aggregate) Blocks() []*assemble.SampledBlock { return a.blocks }

// RowCount returns the total row count over all blocks.
func (a *Aggregate) RowCount() int {
	if len(a.blocks) == 0 {
		return 0
	}
	last := len(a.blocks) - 1
	return a.rowOffsets[last] + a.blocks[last].RowCount()
}

// ColumnCount returns the size of the PV union.
func (a *Aggregate) ColumnCount() int { return len(a.pvs) }

// ColumnNames returns the PV union in first-appearance order.
func (a *Aggregate) ColumnNames() []string { return a.pvs }

// TypeOf returns the agreed type of a PV column.
func (a *Aggregate) TypeOf(name string) (value.Type, bool) {
	t, ok := a.types[name]
	return t, ok
}

// blockFor routes a global row index to (block index, local row) by
// binary search over the cumulative row offsets.
func (a *Aggregate) blockFor(row int) (int, int, bool) {
	if row < 0 || row >= a.RowCount() {
		return 0, 0, false
	}
	i := sort.Search(len(a.rowOffsets), func(i int) bool { return a.rowOffsets[i] > row }) - 1
	return i, row - a.rowOffsets[i], true
}

// Table selects the materialization: static when the static default is
// on and the total size fits the configured bound, else lazy when
// enabled, else the result is not representable.
func (a *Aggregate) Table(cfg config.Table) (Table, error) {
	total := a.RowCount() * a.ColumnCount()
	metrics.TableCellsHistogram.Observe(float64(total))
	if cfg.StaticDefault && (!cfg.StaticHasMax || total <= cfg.StaticMaxSize) {
		return newStatic(a), nil
	}
	if cfg.DynamicEnable {
		return newLazy(a), nil
	}
	return nil, qerr.Newf(qerr.TableNotRepresentable,
		"table of %d cells exceeds the static bound and the lazy table is disabled", total)
}
