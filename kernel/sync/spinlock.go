// Package sync provides the synchronization primitives the rest of the
// kernel builds its critical sections out of: a spinlock, and a helper
// (kernel/trap.DisableInterrupts/EnableInterrupts) that pairs disabling
// supervisor interrupts with a deferred restore.
package sync

import "sync/atomic"

// yieldFn is called by Acquire between failed attempts so a host-side test
// (where Spinlock may genuinely contend across goroutines) does not spin a
// full OS thread. The kernel build leaves it nil, which is correct for a
// single hart: every lock below is only ever held inside a critical section
// with interrupts disabled, so Acquire never actually contends on real
// hardware — the busy-wait loop exists for a future multi-hart kernel, not
// this one.
var yieldFn func()

// Spinlock is a lock where a task trying to acquire it busy-waits until the
// lock becomes available. Guards the frame allocator (kernel.allocFrame) and
// the executor. The root page table, the heap, the virtual-address
// allocators and the stack region allocator are not guarded by one.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// task. Re-acquiring a lock already held by the current task deadlocks.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock, returning true on success.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
