package table

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/osprey-dcs/dp-query/value"
)

// columnCacheSize bounds the synthesized-column cache of a lazy table.
const columnCacheSize = 64

// Lazy keeps the sampled blocks separate.  Row and column access routes
// by binary search over block start offsets; columns absent from a
// block are synthesized on demand and cached.
type Lazy struct {
	agg   *Aggregate
	cache *lru.Cache[string, []value.Value]
}

var _ Table = (*Lazy)(nil)

func newLazy(a *Aggregate) *Lazy {
	cache, _ := lru.New[string, []value.Value](columnCacheSize)
	return &Lazy{agg: a, cache: cache}
}

// RowCount implements Table.
func (l *Lazy) RowCount() int { return l.agg.RowCount() }

// ColumnCount implements Table.
func (l *Lazy) ColumnCount() int { return l.agg.ColumnCount() }

// ColumnNames implements Table.
func (l *Lazy) ColumnNames() []string { return l.agg.ColumnNames() }

// Timestamps implements Table.  The vector is assembled per call;
// prefer Timestamp for point access.
func (l *Lazy) Timestamps() []time.Time {
	out := make([]time.Time, 0, l.agg.RowCount())
	for _, blk := range l.agg.blocks {
		out = append(out, blk.Timestamps()...)
	}
	return out
}

// Timestamp implements Table.
func (l *Lazy) Timestamp(row int) (time.Time, error) {
	bi, local, ok := l.agg.blockFor(row)
	if !ok {
		return time.Time{}, errRowRange
	}
	return l.agg.blocks[bi].Timestamps()[local], nil
}

// HasColumn implements Table.
func (l *Lazy) HasColumn(name string) bool {
	_, ok := l.agg.index[name]
	return ok
}

// Value implements Table.
func (l *Lazy) Value(row, col int) (value.Value, error) {
	bi, local, ok := l.agg.blockFor(row)
	if !ok {
		return value.Absent, errRowRange
	}
	if col < 0 || col >= len(l.agg.pvs) {
		return value.Absent, errColRange
	}
	blk := l.agg.blocks[bi]
	if bj, ok := blk.ColumnIndex(l.agg.pvs[col]); ok {
		return blk.Value(local, bj), nil
	}
	return value.Absent, nil
}

// Column implements Table.
func (l *Lazy) Column(col int) (Column, error) {
	if col < 0 || col >= len(l.agg.pvs) {
		return Column{}, errColRange
	}
	return l.ColumnByName(l.agg.pvs[col])
}

// ColumnByName implements Table.
func (l *Lazy) ColumnByName(name string) (Column, error) {
	if _, ok := l.agg.index[name]; !ok {
		return Column{}, errColRange
	}
	vals := make([]value.Value, 0, l.agg.RowCount())
	for bi, blk := range l.agg.blocks {
		if bj, ok := blk.ColumnIndex(name); ok {
			for r := 0; r < blk.RowCount(); r++ {
				vals = append(vals, blk.Value(r, bj))
			}
			continue
		}
		vals = append(vals, l.absentColumn(bi)...)
	}
	return Column{Name: name, Type: l.agg.types[name], Values: vals}, nil
}

// absentColumn synthesizes (and caches) a block-length run of absent
// cells for a block lacking some PV.
func (l *Lazy) absentColumn(blockIndex int) []value.Value {
	key := fmt.Sprintf("absent-%d", blockIndex)
	if vals, ok := l.cache.Get(key); ok {
		return vals
	}
	n := l.agg.blocks[blockIndex].RowCount()
	vals := make([]value.Value, n)
	for i := range vals {
		vals[i] = value.Absent
	}
	l.cache.Add(key, vals)
	return vals
}
