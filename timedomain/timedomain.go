// Package timedomain partitions a sorted block set into pairwise
// disjoint blocks and super domains: connected components under
// time-range intersection.
package timedomain

import (
	"github.com/osprey-dcs/dp-query/correlate"
	"github.com/osprey-dcs/dp-query/interval"
	"github.com/osprey-dcs/dp-query/metrics"
)

// SuperDomain is a non-empty set of correlated blocks in which every
// block's range intersects at least one other's.  Blocks keep the order
// they were absorbed in: seed first, then scan order.
type SuperDomain struct {
	blocks []*correlate.Block
}

// Blocks returns the member blocks.
func (sd *SuperDomain) Blocks() []*correlate.Block {
	return sd.blocks
}

// Enclosing returns [min(block.start), max(block.end)] over the member
// blocks.  The union of member ranges need not cover it.
func (sd *SuperDomain) Enclosing() interval.Interval {
	out := sd.blocks[0].Interval()
	for _, b := range sd.blocks[1:] {
		out = out.Hull(b.Interval())
	}
	return out
}

// Result is the partition output: D preserves input order and is
// pairwise disjoint; G holds super domains in seed-encounter order.
type Result struct {
	Disjoint []*correlate.Block
	Supers   []*SuperDomain
}

// Partition splits the start-sorted block set.  The lowest-index
// candidate seeds each super domain; the growth loop absorbs blocks in
// scan order until a fixed point.  Removal uses explicit index
// management; the input slice is not modified.
func Partition(sorted []*correlate.Block) Result {
	active := make([]*correlate.Block, len(sorted))
	copy(active, sorted)

	var supers []*SuperDomain
	i := 0
	for i < len(active) {
		if !intersectsLater(active, i) {
			i++
			continue
		}
		sd := &SuperDomain{blocks: []*correlate.Block{active[i]}}
		active = removeAt(active, i)
		for grew := true; grew; {
			grew = false
			j := i
			for j < len(active) {
				if intersectsAny(sd, active[j]) {
					sd.blocks = append(sd.blocks, active[j])
					active = removeAt(active, j)
					grew = true
					continue
				}
				j++
			}
		}
		metrics.SuperDomainSizeHistogram.Observe(float64(len(sd.blocks)))
		supers = append(supers, sd)
		// i is not advanced: the element now at i has not been examined.
	}
	return Result{Disjoint: active, Supers: supers}
}

func intersectsLater(active []*correlate.Block, i int) bool {
	iv := active[i].Interval()
	for j := i + 1; j < len(active); j++ {
		if iv.Intersects(active[j].Interval()) {
			return true
		}
	}
	return false
}

func intersectsAny(sd *SuperDomain, b *correlate.Block) bool {
	iv := b.Interval()
	for _, x := range sd.blocks {
		if x.Interval().Intersects(iv) {
			return true
		}
	}
	return false
}

func removeAt(s []*correlate.Block, i int) []*correlate.Block {
	return append(s[:i], s[i+1:]...)
}
