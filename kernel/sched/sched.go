// Package sched defines the scheduler contract the executor drives and two
// implementations of it, FIFO and round-robin. Neither implementation
// understands threads or processes; both operate purely on opaque handles
// the executor assigns meaning to.
package sched

// Handle identifies a runnable task to a Scheduler. The executor uses a
// thread's TID as the handle.
type Handle uint64

// Priority is accepted by every Scheduler for interface uniformity but is
// only meaningful to implementations that choose to honor it; neither FIFO
// nor RoundRobin does.
type Priority uint8

// Scheduler is the pluggable task-queue contract the executor depends on.
// Each implementation documents its own insertion policy for Add; the
// interface does not constrain it.
type Scheduler interface {
	Add(h Handle, priority Priority)
	Next() (Handle, bool)
	Complete(h Handle)
	Current() (Handle, bool)
	Yield(h Handle)
	SetPriority(h Handle, priority Priority)
}
