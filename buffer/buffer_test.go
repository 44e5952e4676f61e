package buffer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/osprey-dcs/dp-query/buffer"
	"github.com/osprey-dcs/dp-query/value"
	"github.com/osprey-dcs/dp-query/wire"
)

func msg(source string) *wire.QueryData {
	return &wire.QueryData{Buckets: []wire.RawBucket{{
		Source: source,
		Clock:  &wire.Clock{Start: time.Unix(0, 0), Period: 1, Count: 1},
		Values: []value.Value{value.Int32(1)},
	}}}
}

func TestFIFO(t *testing.T) {
	ctx := context.Background()
	b := buffer.New(4)
	for _, s := range []string{"a", "b", "c"} {
		if err := b.Offer(ctx, msg(s)); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := b.Take(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got.Buckets[0].Source != want {
			t.Errorf("got %q, want %q", got.Buckets[0].Source, want)
		}
	}
	if b.HighWater() != 3 {
		t.Error("high water should be 3, got", b.HighWater())
	}
}

func TestOfferBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	b := buffer.New(1)
	if err := b.Offer(ctx, msg("a")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- b.Offer(ctx, msg("b")) }()

	select {
	case err := <-done:
		t.Fatal("offer should block on a full buffer, returned", err)
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := b.Take(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal("offer should complete after a take:", err)
	}
}

func TestShutdownDrains(t *testing.T) {
	ctx := context.Background()
	b := buffer.New(4)
	if err := b.Offer(ctx, msg("a")); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if _, err := b.Take(ctx); err != nil {
			t.Error(err)
		}
	}()
	if err := b.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	if err := b.Offer(ctx, msg("b")); err != buffer.ErrNotAccepting {
		t.Error("expected ErrNotAccepting after shutdown, got", err)
	}
	if _, err := b.Take(ctx); err != buffer.ErrClosed {
		t.Error("expected ErrClosed once drained and shut down, got", err)
	}
}

func TestShutdownNowDiscards(t *testing.T) {
	ctx := context.Background()
	b := buffer.New(4)
	for i := 0; i < 3; i++ {
		if err := b.Offer(ctx, msg("x")); err != nil {
			t.Fatal(err)
		}
	}
	b.ShutdownNow()
	if b.Size() != 0 {
		t.Error("ShutdownNow must discard in-flight messages")
	}
	if _, err := b.Take(ctx); err != buffer.ErrClosed {
		t.Error("expected ErrClosed, got", err)
	}
}

func TestPollTimeout(t *testing.T) {
	ctx := context.Background()
	b := buffer.New(1)
	start := time.Now()
	if _, err := b.Poll(ctx, 20*time.Millisecond); err != buffer.ErrPollTimeout {
		t.Error("expected ErrPollTimeout, got", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("poll returned before the timeout")
	}
}

func TestAwaitEmptyReleasesAllWaiters(t *testing.T) {
	ctx := context.Background()
	b := buffer.New(4)
	if err := b.Offer(ctx, msg("a")); err != nil {
		t.Fatal(err)
	}

	const waiters = 3
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.AwaitEmpty(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := b.Take(ctx); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	// Idempotent wrt wake-up: an empty buffer releases immediately.
	if err := b.AwaitEmpty(ctx); err != nil {
		t.Error(err)
	}
}

func TestBlockedOfferUnblocksOnShutdown(t *testing.T) {
	ctx := context.Background()
	b := buffer.New(1)
	if err := b.Offer(ctx, msg("a")); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- b.Offer(ctx, msg("b")) }()
	time.Sleep(10 * time.Millisecond)
	b.ShutdownNow()
	if err := <-done; err != buffer.ErrNotAccepting {
		t.Error("a blocked offer must observe the shutdown, got", err)
	}
}

func TestOfferHonorsContext(t *testing.T) {
	b := buffer.New(1)
	if err := b.Offer(context.Background(), msg("a")); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.Offer(ctx, msg("b")); err != context.DeadlineExceeded {
		t.Error("expected DeadlineExceeded, got", err)
	}
}
