package pmm

import (
	"rvos/kernel/addr"
	"rvos/kernel/errors"
)

// freeNode is the layout a freed frame's contents are overwritten with: a
// single pointer to the next frame on the free list, or addr.Null.
type freeNode struct {
	next addr.Physical
}

// Allocator hands out physical frames from a contiguous arena. Before any
// frame has been freed it behaves as a pure bump allocator over the arena;
// once Free is called it behaves as a LIFO free list. The two phases share
// one allocator so boot-time allocation, which never frees, and steady-state
// allocation, which does, use the same code path.
//
// Allocator is not safe for concurrent use; callers serialize access with a
// critical section (see rvos/kernel/sync).
type Allocator struct {
	arena         addr.Segment[addr.Physical]
	virtualOffset addr.Offset
	breakIndex    uint64
	freeListHead  addr.Physical
}

// Init records the arena this allocator serves and the signed offset that
// converts an arena physical address into a virtual address the allocator
// can dereference to read or write free-list links. Init is not idempotent;
// callers must hold exclusive access to arena.
func (a *Allocator) Init(arena addr.Segment[addr.Physical], virtualOffset addr.Offset) {
	a.arena = arena
	a.virtualOffset = virtualOffset
	a.breakIndex = 0
	a.freeListHead = addr.Physical(addr.Null)
}

// Rebase replaces the arena descriptor used by the allocator. It must only
// be called while the free list is empty (no frame has ever been freed) so
// that no in-place free-list pointers need rewriting; only frames at or past
// the current break index remain available for (re)issue under the new
// descriptor.
func (a *Allocator) Rebase(newArena addr.Segment[addr.Physical], newVirtualOffset addr.Offset) {
	a.arena = newArena
	a.virtualOffset = newVirtualOffset
}

func (a *Allocator) frameCount() uint64 {
	return uint64(a.arena.Size() / uintptr(FrameSize))
}

func (a *Allocator) frameAt(index uint64) addr.Physical {
	return a.arena.Start.Add(addr.Offset(index * uint64(FrameSize)))
}

func (a *Allocator) virtualOf(p addr.Physical) addr.Virtual {
	return addr.Virtual(p.Add(a.virtualOffset))
}

// Allocate returns the next available physical frame, preferring the free
// list over the bump region, or reports failure when both are exhausted.
func (a *Allocator) Allocate() (addr.Physical, *errors.Error) {
	if !a.freeListHead.IsNull() {
		head := a.freeListHead
		node := addr.PointerTo[freeNode](a.virtualOf(head))
		a.freeListHead = node.next
		return head, nil
	}

	if a.breakIndex < a.frameCount() {
		f := a.frameAt(a.breakIndex)
		a.breakIndex++
		return f, nil
	}

	return addr.Physical(addr.Null), errors.New(errors.OutOfPhysicalFrames, "frame arena exhausted")
}

// Free returns a previously issued frame to the allocator. The caller
// asserts that the frame was in fact issued by a prior call to Allocate; the
// allocator does not (and, per its invariants, cannot cheaply) verify this.
func (a *Allocator) Free(p addr.Physical) {
	aligned := p.AlignDown(uintptr(FrameSize))
	node := addr.PointerTo[freeNode](a.virtualOf(aligned))
	node.next = a.freeListHead
	a.freeListHead = aligned
}
