// Package queue implements the bounded FIFO used to hand data from interrupt
// handlers to mainline code.
package queue

import (
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/sync"
)

var (
	// ErrFull is returned by Push when the ring has no free slot. The
	// pushed item is dropped.
	ErrFull = &kernel.Error{Module: "queue", Message: "queue is full"}
)

// Ring is a fixed-capacity circular FIFO. Its storage is supplied by the
// caller (typically a statically allocated array) and is never resized.
//
// Ring performs no locking on its own; use Shared for rings that are accessed
// from both interrupt handlers and mainline code.
type Ring[T any] struct {
	buf    []T
	rIndex int
	wIndex int
	count  int
}

// New returns a Ring that uses storage as its backing array. The capacity of
// the ring is len(storage).
func New[T any](storage []T) *Ring[T] {
	r := &Ring[T]{}
	r.Init(storage)
	return r
}

// Init (re)initializes the ring so that it uses storage as its backing array
// and discards any queued items.
func (r *Ring[T]) Init(storage []T) {
	r.buf = storage
	r.Reset()
}

// Push appends item to the tail of the ring. If the ring is full, Push
// returns ErrFull and the item is dropped; items already queued are never
// overwritten.
func (r *Ring[T]) Push(item T) *kernel.Error {
	if r.count == len(r.buf) {
		return ErrFull
	}

	r.buf[r.wIndex] = item
	r.wIndex++
	if r.wIndex == len(r.buf) {
		r.wIndex = 0
	}
	r.count++

	return nil
}

// Pop removes and returns the item at the head of the ring. The second
// return value is false if the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	var item T
	if r.count == 0 {
		return item, false
	}

	item = r.buf[r.rIndex]

	// Clear the slot so that stale values cannot leak out of the ring.
	var zero T
	r.buf[r.rIndex] = zero

	r.rIndex++
	if r.rIndex == len(r.buf) {
		r.rIndex = 0
	}
	r.count--

	return item, true
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// IsEmpty returns true if the ring holds no items.
func (r *Ring[T]) IsEmpty() bool { return r.count == 0 }

// IsFull returns true if a call to Push would fail.
func (r *Ring[T]) IsFull() bool { return r.count == len(r.buf) }

// Reset discards all queued items.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.rIndex, r.wIndex, r.count = 0, 0, 0
}

// Shared is a Ring protected by an interrupt-masking guard. Push is meant to
// be called by interrupt handlers and Pop by mainline code; both hold the
// guard for their full duration.
type Shared[T any] struct {
	ring sync.IRQGuarded[Ring[T]]

	// dropped counts the items rejected because the ring was full.
	dropped uint64
}

// Init sets up the backing storage for the shared ring.
func (s *Shared[T]) Init(storage []T) {
	guard := s.ring.Lock()
	guard.Value().Init(storage)
	s.dropped = 0
	guard.Release()
}

// Push appends item to the ring. It never blocks; if the ring is full the
// item is dropped and ErrFull is returned.
func (s *Shared[T]) Push(item T) *kernel.Error {
	guard := s.ring.Lock()
	defer guard.Release()

	err := guard.Value().Push(item)
	if err != nil {
		s.dropped++
	}
	return err
}

// Pop removes the oldest item from the ring. It never blocks; the second
// return value is false if the ring is empty.
func (s *Shared[T]) Pop() (T, bool) {
	guard := s.ring.Lock()
	defer guard.Release()

	return guard.Value().Pop()
}

// Len returns the number of queued items.
func (s *Shared[T]) Len() int {
	guard := s.ring.Lock()
	defer guard.Release()

	return guard.Value().Len()
}

// Dropped returns the number of items rejected because the ring was full.
func (s *Shared[T]) Dropped() uint64 {
	guard := s.ring.Lock()
	defer guard.Release()

	return s.dropped
}
