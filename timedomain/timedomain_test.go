package timedomain_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/osprey-dcs/dp-query/config"
	"github.com/osprey-dcs/dp-query/correlate"
	"github.com/osprey-dcs/dp-query/timedomain"
	"github.com/osprey-dcs/dp-query/value"
	"github.com/osprey-dcs/dp-query/wire"
)

func ts(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// blocksWithRanges builds one correlated block per [begin, end] pair,
// using a two-sample clock spanning exactly that range.
func blocksWithRanges(t *testing.T, ranges ...[2]int64) []*correlate.Block {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.Default()
	cfg.Data.ErrorChecking = false // ranges here may share starts
	c := correlate.New(cfg, log)
	buckets := make([]wire.RawBucket, 0, len(ranges))
	for i, r := range ranges {
		buckets = append(buckets, wire.RawBucket{
			Source: "pv-" + string(rune('A'+i)),
			Clock:  &wire.Clock{Start: ts(r[0]), Period: time.Duration(r[1] - r[0]), Count: 2},
			Values: []value.Value{value.Int32(0), value.Int32(1)},
		})
	}
	if err := c.Process(context.Background(), &wire.QueryData{Buckets: buckets}); err != nil {
		t.Fatal(err)
	}
	blocks, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	return blocks
}

func identities(blocks []*correlate.Block) map[*correlate.Block]bool {
	out := make(map[*correlate.Block]bool, len(blocks))
	for _, b := range blocks {
		out[b] = true
	}
	return out
}

// Three chained ranges, each overlapping its neighbour, collapse into
// one super domain.
func TestAllOverlapping(t *testing.T) {
	blocks := blocksWithRanges(t, [2]int64{0, 10}, [2]int64{5, 15}, [2]int64{12, 20})
	res := timedomain.Partition(blocks)

	if len(res.Disjoint) != 0 {
		t.Error("expected empty disjoint list, got", len(res.Disjoint))
	}
	if len(res.Supers) != 1 {
		t.Fatal("expected one super domain, got", len(res.Supers))
	}
	enc := res.Supers[0].Enclosing()
	if enc.Begin != ts(0) || enc.End != ts(20) {
		t.Error("wrong enclosing range:", enc)
	}
}

// One isolated block plus an overlapping pair.
func TestDisjointPlusOne(t *testing.T) {
	blocks := blocksWithRanges(t, [2]int64{0, 10}, [2]int64{11, 20}, [2]int64{15, 25})
	res := timedomain.Partition(blocks)

	if len(res.Disjoint) != 1 {
		t.Fatal("expected one disjoint block, got", len(res.Disjoint))
	}
	iv := res.Disjoint[0].Interval()
	if iv.Begin != ts(0) || iv.End != ts(10) {
		t.Error("wrong disjoint block:", iv)
	}
	if len(res.Supers) != 1 {
		t.Fatal("expected one super domain, got", len(res.Supers))
	}
	enc := res.Supers[0].Enclosing()
	if enc.Begin != ts(11) || enc.End != ts(25) {
		t.Error("wrong enclosing range:", enc)
	}
}

// Transitive chaining: I1 meets I2, I2 meets I3, I1 and I3 disjoint;
// all three belong to one connected component.
func TestTransitiveChain(t *testing.T) {
	blocks := blocksWithRanges(t, [2]int64{0, 10}, [2]int64{8, 30}, [2]int64{25, 40})
	res := timedomain.Partition(blocks)

	if len(res.Supers) != 1 || len(res.Supers[0].Blocks()) != 3 {
		t.Fatal("chain must form one super domain")
	}
	enc := res.Supers[0].Enclosing()
	if enc.Begin != ts(0) || enc.End != ts(40) {
		t.Error("wrong enclosing range:", enc)
	}
	// Disjoint members within the domain are allowed: blocks 1 and 3
	// never intersect directly.
	b := res.Supers[0].Blocks()
	if b[0].Interval().Intersects(b[2].Interval()) {
		t.Error("test fixture broken: ends should not intersect")
	}
}

func TestAllDisjoint(t *testing.T) {
	blocks := blocksWithRanges(t, [2]int64{0, 10}, [2]int64{20, 30}, [2]int64{40, 50})
	res := timedomain.Partition(blocks)
	if len(res.Supers) != 0 || len(res.Disjoint) != 3 {
		t.Fatal("expected all blocks disjoint")
	}
	// Input order preserved.
	for i, b := range res.Disjoint {
		if b != blocks[i] {
			t.Error("disjoint list reordered at", i)
		}
	}
}

// Identity preservation plus pairwise range disjointness of outputs.
func TestPartitionInvariants(t *testing.T) {
	blocks := blocksWithRanges(t,
		[2]int64{0, 5}, [2]int64{3, 9}, [2]int64{20, 25},
		[2]int64{30, 40}, [2]int64{35, 50}, [2]int64{48, 60},
		[2]int64{100, 110},
	)
	res := timedomain.Partition(blocks)

	seen := identities(res.Disjoint)
	for _, sd := range res.Supers {
		for _, b := range sd.Blocks() {
			if seen[b] {
				t.Fatal("block appears twice in partition output")
			}
			seen[b] = true
		}
	}
	if len(seen) != len(blocks) {
		t.Fatal("partition lost blocks:", len(seen), "of", len(blocks))
	}
	for _, b := range blocks {
		if !seen[b] {
			t.Error("missing block", b.Interval())
		}
	}

	// Collect every output range: disjoint block ranges and super
	// domain enclosures must be pairwise disjoint.
	var ranges []struct {
		begin, end time.Time
	}
	for _, b := range res.Disjoint {
		iv := b.Interval()
		ranges = append(ranges, struct{ begin, end time.Time }{iv.Begin, iv.End})
	}
	for _, sd := range res.Supers {
		enc := sd.Enclosing()
		ranges = append(ranges, struct{ begin, end time.Time }{enc.Begin, enc.End})
	}
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if !a.end.Before(b.begin) && !b.end.Before(a.begin) {
				t.Errorf("output ranges %d and %d intersect", i, j)
			}
		}
	}
}

func TestEmptyInput(t *testing.T) {
	res := timedomain.Partition(nil)
	if len(res.Disjoint) != 0 || len(res.Supers) != 0 {
		t.Error("empty input must produce empty output")
	}
}
