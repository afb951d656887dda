// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package outbox provides an unbounded FIFO between a producer that
// must never block and a single writer goroutine.
//
// Session output is fanned out under a lock shared by every session,
// so a slow viewer must not stall it. Each viewer gets an Outbox; the
// fan-out pushes into it and the viewer's writer goroutine drains it:
//
//	for {
//		select {
//		case <-box.Ready():
//			write(box.Drain())
//		case <-box.Done():
//			write(box.Drain())
//			return
//		}
//	}
//
// Memory grows without bound while a writer is stuck. Callers detect
// stuck writers through write errors or deadlines.
package outbox

import "sync"

// Outbox is an unbounded queue of T.
type Outbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	ready chan struct{}
	done  chan struct{}
}

// New returns an empty, open outbox.
func New[T any]() *Outbox[T] {
	return &Outbox[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends item. It returns false if the outbox is closed.
func (o *Outbox[T]) Push(item T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.items = append(o.items, item)
	select {
	case o.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready receives after a Push. One receive may cover several pushes.
func (o *Outbox[T]) Ready() <-chan struct{} { return o.ready }

// Done is closed by Close and Finish.
func (o *Outbox[T]) Done() <-chan struct{} { return o.done }

// Drain removes and returns every queued item.
func (o *Outbox[T]) Drain() []T {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items
	o.items = nil
	return items
}

// Len returns the number of queued items.
func (o *Outbox[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Discard drops every queued item.
func (o *Outbox[T]) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = nil
}

// Close stops accepting items. Items already queued stay drainable.
func (o *Outbox[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked()
}

// Finish discards queued items, queues final as the only remaining
// item and closes the outbox. It does nothing if already closed.
func (o *Outbox[T]) Finish(final T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.items = []T{final}
	o.closeLocked()
}

func (o *Outbox[T]) closeLocked() {
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}
