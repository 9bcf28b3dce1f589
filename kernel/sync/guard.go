package sync

import (
	"sync/atomic"

	"github.com/WebFirstLanguage/wflos/kernel/cpu"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	saveAndDisableInterruptsFn = cpu.SaveAndDisableInterrupts
	restoreInterruptsFn        = cpu.RestoreInterrupts
)

// Guarded wraps a value of type T so that it can only be accessed while
// holding the embedded spinlock. The zero value is an unlocked guard around
// the zero value of T which allows Guarded values to be declared as package
// level variables without any initialization code.
//
// Guarded must only protect state that is never touched by interrupt
// handlers; use IRQGuarded for state shared with handler context.
type Guarded[T any] struct {
	lock Spinlock

	// holder is bumped whenever the lock changes hands. A guard may only
	// release the lock while its ticket matches.
	holder uint64
	value  T
}

// Guard grants exclusive access to the value wrapped by a Guarded or
// IRQGuarded instance until Release is called.
type Guard[T any] struct {
	value  *T
	lock   *Spinlock
	holder *uint64
	ticket uint64

	// For guards handed out by IRQGuarded, the RFLAGS value that must be
	// restored after the lock is released.
	restoreFlags bool
	savedFlags   uint64
}

func newGuard[T any](value *T, lock *Spinlock, holder *uint64) Guard[T] {
	ticket := atomic.AddUint64(holder, 1)
	return Guard[T]{value: value, lock: lock, holder: holder, ticket: ticket}
}

// Value returns a pointer to the protected value. The pointer must not be
// retained after the guard is released.
func (g *Guard[T]) Value() *T {
	return g.value
}

// Release relinquishes the guard. Calling Release more than once, or on a
// copy of a guard that was already released, has no effect even if the lock
// has been handed to another holder in the meantime.
func (g *Guard[T]) Release() {
	if g.lock == nil {
		return
	}

	lock, holder, ticket := g.lock, g.holder, g.ticket
	g.lock, g.value = nil, nil

	// Invalidating the ticket before unlocking turns any copy of this
	// guard into a no-op.
	if !atomic.CompareAndSwapUint64(holder, ticket, ticket+1) {
		return
	}
	lock.Release()

	if g.restoreFlags {
		restoreInterruptsFn(g.savedFlags)
	}
}

// Lock spins until the lock is acquired and returns a guard for the wrapped
// value. Callers should defer a call to Release on the returned guard.
func (g *Guarded[T]) Lock() Guard[T] {
	g.lock.Acquire()
	return newGuard(&g.value, &g.lock, &g.holder)
}

// Do acquires the lock, invokes fn with a pointer to the wrapped value and
// releases the lock when fn returns or panics.
func (g *Guarded[T]) Do(fn func(*T)) {
	guard := g.Lock()
	defer guard.Release()

	fn(guard.Value())
}

// IRQGuarded wraps a value of type T that is shared between mainline code and
// interrupt handlers. Acquiring the guard masks interrupts on the current CPU
// before spinning for the lock so that a handler can never interrupt the
// holder and spin forever on a lock that cannot be released until it returns.
// The interrupt flag state that was active before the acquisition is restored
// when the guard is released.
type IRQGuarded[T any] struct {
	lock   Spinlock
	holder uint64
	value  T
}

// Lock masks interrupts, spins until the lock is acquired and returns a guard
// for the wrapped value.
func (g *IRQGuarded[T]) Lock() Guard[T] {
	flags := saveAndDisableInterruptsFn()
	g.lock.Acquire()

	guard := newGuard(&g.value, &g.lock, &g.holder)
	guard.restoreFlags = true
	guard.savedFlags = flags
	return guard
}

// Do acquires the guard with interrupts masked, invokes fn with a pointer to
// the wrapped value and then releases the guard, even if fn panics.
func (g *IRQGuarded[T]) Do(fn func(*T)) {
	guard := g.Lock()
	defer guard.Release()

	fn(guard.Value())
}

// SetInterruptMaskFuncs replaces the functions that IRQGuarded uses to mask
// and restore interrupts. Passing nil for either function restores the CPU
// implementation. Code running outside ring 0 (e.g. host-side tests) cannot
// execute CLI and must install replacements before touching an IRQGuarded.
func SetInterruptMaskFuncs(save func() uint64, restore func(uint64)) {
	if save == nil {
		save = cpu.SaveAndDisableInterrupts
	}
	if restore == nil {
		restore = cpu.RestoreInterrupts
	}

	saveAndDisableInterruptsFn, restoreInterruptsFn = save, restore
}
