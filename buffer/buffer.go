// Package buffer implements the bounded blocking queue between the
// stream workers and the downstream processors.
//
//  1. Workers offer decoded data messages; offers block while the buffer
//     is full, which throttles the peer through RPC flow control.
//  2. Consumers take or poll; both unblock on shutdown once the buffer
//     drains.
//  3. Shutdown stops intake and waits for empty; ShutdownNow discards.
package buffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/osprey-dcs/dp-query/metrics"
	"github.com/osprey-dcs/dp-query/wire"
)

// Errors returned by buffer operations.
var (
	ErrNotAccepting = errors.New("buffer is not accepting messages")
	ErrClosed       = errors.New("buffer is drained and shut down")
	ErrPollTimeout  = errors.New("buffer poll timed out")
)

// Buffer is a bounded FIFO of response-data messages.  FIFO order holds
// per producer; no order is promised across producers.
type Buffer struct {
	mu        sync.Mutex
	items     []*wire.QueryData
	capacity  int
	accepting bool
	// changed is closed and replaced on every state transition; waiters
	// select on the instance they observed under mu.
	changed   chan struct{}
	highWater int
}

// New creates a Buffer holding at most capacity messages.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity:  capacity,
		accepting: true,
		changed:   make(chan struct{}),
	}
}

func (b *Buffer) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Offer enqueues msg, blocking while the buffer is full.  It fails with
// ErrNotAccepting once the buffer is shut down, even for waiters already
// blocked on a full buffer.
func (b *Buffer) Offer(ctx context.Context, msg *wire.QueryData) error {
	for {
		b.mu.Lock()
		if !b.accepting {
			b.mu.Unlock()
			return ErrNotAccepting
		}
		if len(b.items) < b.capacity {
			b.items = append(b.items, msg)
			if len(b.items) > b.highWater {
				b.highWater = len(b.items)
			}
			metrics.BufferDepthHistogram.Observe(float64(len(b.items)))
			b.broadcastLocked()
			b.mu.Unlock()
			return nil
		}
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Take dequeues the oldest message, blocking while the buffer is empty.
// It fails with ErrClosed when the buffer is empty and shut down.
func (b *Buffer) Take(ctx context.Context) (*wire.QueryData, error) {
	return b.take(ctx, nil)
}

// Poll behaves like Take but gives up with ErrPollTimeout after the
// given duration.
func (b *Buffer) Poll(ctx context.Context, timeout time.Duration) (*wire.QueryData, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return b.take(ctx, timer.C)
}

func (b *Buffer) take(ctx context.Context, deadline <-chan time.Time) (*wire.QueryData, error) {
	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			msg := b.items[0]
			b.items = b.items[1:]
			b.broadcastLocked()
			b.mu.Unlock()
			return msg, nil
		}
		if !b.accepting {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ch:
		case <-deadline:
			return nil, ErrPollTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Shutdown stops intake and blocks until the buffer drains.  Pending
// consumers finish normally; new offers fail.
func (b *Buffer) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.accepting = false
	b.broadcastLocked()
	b.mu.Unlock()
	return b.AwaitEmpty(ctx)
}

// ShutdownNow stops intake and discards every in-flight message.
func (b *Buffer) ShutdownNow() {
	b.mu.Lock()
	b.accepting = false
	b.items = nil
	b.broadcastLocked()
	b.mu.Unlock()
}

// AwaitEmpty blocks until the buffer size reaches zero.  All concurrent
// waiters are released together.
func (b *Buffer) AwaitEmpty(ctx context.Context) error {
	for {
		b.mu.Lock()
		if len(b.items) == 0 {
			b.mu.Unlock()
			return nil
		}
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Size returns the current queue depth.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// HighWater returns the maximum depth observed since creation.
func (b *Buffer) HighWater() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highWater
}

// Accepting reports whether the buffer still accepts offers.
func (b *Buffer) Accepting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepting
}
