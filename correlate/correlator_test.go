package correlate_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/sirupsen/logrus"

	"github.com/osprey-dcs/dp-query/config"
	"github.com/osprey-dcs/dp-query/correlate"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/value"
	"github.com/osprey-dcs/dp-query/wire"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCorrelator() *correlate.Correlator {
	return correlate.New(config.Default(), testLogger())
}

func ts(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func ints(vals ...int32) []value.Value {
	out := make([]value.Value, len(vals))
	for i, v := range vals {
		out[i] = value.Int32(v)
	}
	return out
}

func clocked(source string, startNs, periodNs int64, vals ...int32) wire.RawBucket {
	return wire.RawBucket{
		Source: source,
		Clock:  &wire.Clock{Start: ts(startNs), Period: time.Duration(periodNs), Count: len(vals)},
		Values: ints(vals...),
	}
}

func listed(source string, times []int64, vals ...int32) wire.RawBucket {
	tl := make(wire.TimestampList, len(times))
	for i, ns := range times {
		tl[i] = ts(ns)
	}
	return wire.RawBucket{Source: source, Times: tl, Values: ints(vals...)}
}

func process(t *testing.T, c *correlate.Correlator, buckets ...wire.RawBucket) {
	t.Helper()
	if err := c.Process(context.Background(), &wire.QueryData{Buckets: buckets}); err != nil {
		t.Fatal(err)
	}
}

// Two buckets sharing one clock merge into a single clocked block.
func TestClockedMerge(t *testing.T) {
	c := newCorrelator()
	process(t, c,
		clocked("A", 1000, 1000, 1, 2, 3),
		clocked("B", 1000, 1000, 10, 20, 30),
	)

	blocks, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatal("expected one merged block, got", len(blocks))
	}
	blk := blocks[0]
	if blk.Kind() != correlate.Clocked {
		t.Error("wrong kind:", blk.Kind())
	}
	wantTimes := []time.Time{ts(1000), ts(2000), ts(3000)}
	if diff := deep.Equal(blk.Timestamps(), wantTimes); diff != nil {
		t.Error(diff)
	}
	iv := blk.Interval()
	if iv.Begin != ts(1000) || iv.End != ts(3000) {
		t.Error("wrong range:", iv)
	}
	cols := blk.Columns()
	if len(cols) != 2 || cols[0].Source != "A" || cols[1].Source != "B" {
		t.Error("wrong columns:", cols)
	}
	if diff := deep.Equal(cols[1].Values, ints(10, 20, 30)); diff != nil {
		t.Error(diff)
	}
}

// Disjoint PV sets over an identical clock merge; they do not split.
func TestRowEqualSamplingMerges(t *testing.T) {
	c := newCorrelator()
	process(t, c, clocked("A", 0, 10, 1, 2))
	process(t, c, clocked("B", 0, 10, 3, 4))

	blocks, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatal("identical clocks must correlate into one block, got", len(blocks))
	}
	if !blocks[0].HasSource("A") || !blocks[0].HasSource("B") {
		t.Error("merged block lost a source")
	}
}

func TestTimestampListCorrelation(t *testing.T) {
	c := newCorrelator()
	process(t, c,
		listed("A", []int64{5, 9, 14}, 1, 2, 3),
		listed("B", []int64{5, 9, 14}, 4, 5, 6),
		listed("C", []int64{100, 200}, 7, 8),
	)
	blocks, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatal("expected two list blocks, got", len(blocks))
	}
	if blocks[0].SampleCount() != 3 || blocks[1].SampleCount() != 2 {
		t.Error("wrong sample counts")
	}
	if blocks[0].Kind() != correlate.TmsList {
		t.Error("wrong kind:", blocks[0].Kind())
	}
}

// A single-bucket response yields one block of the provenance's length.
func TestSingleBucket(t *testing.T) {
	c := newCorrelator()
	process(t, c, clocked("A", 0, 10, 1, 2, 3, 4))
	blocks, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].SampleCount() != 4 {
		t.Error("wrong block shape")
	}
}

func TestUnsupportedProvenance(t *testing.T) {
	c := newCorrelator()
	err := c.Process(context.Background(), &wire.QueryData{Buckets: []wire.RawBucket{
		{Source: "A", Values: ints(1)},
	}})
	if !qerr.Is(err, qerr.UnsupportedProvenance) {
		t.Error("expected UnsupportedProvenance, got", err)
	}
}

func TestResultSortedByStart(t *testing.T) {
	c := newCorrelator()
	process(t, c,
		clocked("C", 5000, 10, 1),
		clocked("A", 1000, 10, 1),
		clocked("B", 3000, 10, 1),
	)
	blocks, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(blocks); i++ {
		if !blocks[i-1].Start().Before(blocks[i].Start()) {
			t.Error("result not sorted by start time")
		}
	}
}

func TestVerifyBadColumnSize(t *testing.T) {
	c := newCorrelator()
	bad := wire.RawBucket{
		Source: "A",
		Clock:  &wire.Clock{Start: ts(0), Period: 10, Count: 3},
		Values: ints(1, 2), // two samples, clock promises three
	}
	process(t, c, bad)
	if _, err := c.Result(); !qerr.Is(err, qerr.BadColumnSize) {
		t.Error("expected BadColumnSize, got", err)
	}
}

func TestVerifyDuplicateSource(t *testing.T) {
	c := newCorrelator()
	process(t, c,
		clocked("A", 0, 10, 1, 2),
		clocked("A", 0, 10, 3, 4),
	)
	if _, err := c.Result(); !qerr.Is(err, qerr.DuplicateSource) {
		t.Error("expected DuplicateSource, got", err)
	}
}

func TestVerifyBadOrdering(t *testing.T) {
	// Two provenances sharing a start time violate the strictly
	// increasing start ordering.
	c := newCorrelator()
	process(t, c,
		clocked("A", 0, 10, 1, 2),
		wire.RawBucket{
			Source: "B",
			Clock:  &wire.Clock{Start: ts(0), Period: 20, Count: 2},
			Values: ints(3, 4),
		},
	)
	if _, err := c.Result(); !qerr.Is(err, qerr.BadOrdering) {
		t.Error("expected BadOrdering, got", err)
	}
}

func TestVerificationToggle(t *testing.T) {
	cfg := config.Default()
	cfg.Data.ErrorChecking = false
	c := correlate.New(cfg, testLogger())
	if err := c.Process(context.Background(), &wire.QueryData{Buckets: []wire.RawBucket{
		clocked("A", 0, 10, 1, 2),
		clocked("A", 0, 10, 3, 4),
	}}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Result(); err != nil {
		t.Error("verification disabled, Result should succeed:", err)
	}
}

// Reset idempotence: a reset correlator reproduces a fresh one's output.
func TestResetReuse(t *testing.T) {
	run := func(c *correlate.Correlator) []*correlate.Block {
		process(t, c,
			clocked("A", 1000, 1000, 1, 2, 3),
			clocked("B", 1000, 1000, 10, 20, 30),
			listed("C", []int64{7000, 8000}, 5, 6),
		)
		blocks, err := c.Result()
		if err != nil {
			t.Fatal(err)
		}
		return blocks
	}

	reused := newCorrelator()
	first := run(reused)
	if reused.ProcessedBytes() == 0 {
		t.Error("processed bytes should be tracked")
	}
	reused.Reset()
	if reused.ProcessedBytes() != 0 {
		t.Error("Reset must zero the processed-bytes counter")
	}
	second := run(reused)
	fresh := run(newCorrelator())

	summarize := func(blocks []*correlate.Block) [][]string {
		out := make([][]string, len(blocks))
		for i, blk := range blocks {
			for _, col := range blk.Columns() {
				out[i] = append(out[i], col.Source)
			}
		}
		return out
	}
	if diff := deep.Equal(summarize(second), summarize(fresh)); diff != nil {
		t.Error("reset correlator diverged from a fresh instance:", diff)
	}
	if diff := deep.Equal(summarize(first), summarize(second)); diff != nil {
		t.Error("reset correlator diverged from its first run:", diff)
	}
}

// Parallel insertion above the pivot produces the same block set.
func TestParallelInsertion(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency.PivotSize = 0
	c := correlate.New(cfg, testLogger())

	buckets := make([]wire.RawBucket, 0, 64)
	for i := 0; i < 64; i++ {
		buckets = append(buckets, clocked("pv-"+string(rune('a'+i%26))+string(rune('0'+i/26)), int64(1000*(i%8)), 10, int32(i), int32(i+1)))
	}
	if err := c.Process(context.Background(), &wire.QueryData{Buckets: buckets}); err != nil {
		t.Fatal(err)
	}
	blocks, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	// 8 distinct clocks, so 8 blocks, 8 columns each.
	if len(blocks) != 8 {
		t.Fatal("expected 8 blocks, got", len(blocks))
	}
	for _, blk := range blocks {
		if len(blk.Columns()) != 8 {
			t.Error("expected 8 columns per block, got", len(blk.Columns()))
		}
	}
}
