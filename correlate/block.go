// Package correlate groups raw sample buckets into correlated blocks
// keyed by timestamp provenance.
package correlate

import (
	"sync"
	"time"

	"github.com/osprey-dcs/dp-query/interval"
	"github.com/osprey-dcs/dp-query/value"
	"github.com/osprey-dcs/dp-query/wire"
)

// Kind is the provenance variant of a block.
type Kind int

// Block variants.
const (
	Clocked Kind = iota
	TmsList
)

func (k Kind) String() string {
	if k == TmsList {
		return "tmslist"
	}
	return "clocked"
}

// Column is one source's sample vector within a block.
type Column struct {
	Source string
	Values []value.Value
}

// Block is a set of columns sharing one provenance key.  Columns are
// appended under the block's lock; everything else is immutable after
// creation.
type Block struct {
	seq   uint64
	key   wire.ProvenanceKey
	kind  Kind
	clock *wire.Clock
	times wire.TimestampList

	mu      sync.Mutex
	columns []Column
}

func newBlock(seq uint64, key wire.ProvenanceKey, b *wire.RawBucket) *Block {
	blk := &Block{seq: seq, key: key}
	if b.Clock != nil {
		blk.kind = Clocked
		c := *b.Clock
		blk.clock = &c
	} else {
		blk.kind = TmsList
		blk.times = append(wire.TimestampList(nil), b.Times...)
	}
	blk.columns = []Column{{Source: b.Source, Values: b.Values}}
	return blk
}

// append adds one bucket's column.  Callers hold no other lock.
func (b *Block) append(bucket *wire.RawBucket) {
	b.mu.Lock()
	b.columns = append(b.columns, Column{Source: bucket.Source, Values: bucket.Values})
	b.mu.Unlock()
}

// Kind returns the provenance variant.
func (b *Block) Kind() Kind { return b.kind }

// Key returns the provenance identity shared by every column.
func (b *Block) Key() wire.ProvenanceKey { return b.key }

// Seq returns the creation index; it breaks start-time ties so that
// same-start siblings never compare equal.
func (b *Block) Seq() uint64 { return b.seq }

// SampleCount returns the row count promised by the provenance.
func (b *Block) SampleCount() int {
	if b.kind == Clocked {
		return b.clock.Count
	}
	return len(b.times)
}

// Timestamps returns the block's instant vector.
func (b *Block) Timestamps() []time.Time {
	if b.kind == Clocked {
		return b.clock.Timestamps()
	}
	return b.times
}

// Interval returns [firstTimestamp, lastTimestamp].
func (b *Block) Interval() interval.Interval {
	if b.kind == Clocked {
		return b.clock.Interval()
	}
	return b.times.Interval()
}

// Start returns the first timestamp.
func (b *Block) Start() time.Time {
	return b.Interval().Begin
}

// Columns returns the block's columns in insertion order.
func (b *Block) Columns() []Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Column, len(b.columns))
	copy(out, b.columns)
	return out
}

// HasSource reports whether a column for the named source exists.
func (b *Block) HasSource(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.columns {
		if b.columns[i].Source == name {
			return true
		}
	}
	return false
}

// Less orders blocks by start time, breaking ties by creation index so
// that distinct blocks never compare equal.  Suitable for ordered
// containers only, never for hashing.
func (b *Block) Less(o *Block) bool {
	bs, os := b.Start(), o.Start()
	if bs.Before(os) {
		return true
	}
	if os.Before(bs) {
		return false
	}
	return b.seq < o.seq
}
