// Package stack allocates guarded kernel and user stacks out of reserved
// virtual regions, backing them with frames and mappings from kernel/mem/vmm.
package stack

import (
	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
	"rvos/kernel/mem/vmm"
)

// Stack is a handle to a mapped stack region. Top points one past the
// highest mapped byte, ready to be loaded directly into a stack pointer
// register.
type Stack struct {
	segment addr.Segment[addr.Virtual]
	Top     addr.Virtual
}

// NewKernel reserves size bytes plus a guard page on each side from valloc,
// maps only the inner size bytes as read-write kernel-global memory in as,
// and returns a handle to it. The guard pages are left unmapped so a
// kernel-thread stack overflow faults instead of corrupting a neighboring
// region.
func NewKernel(size uintptr, valloc *vmm.Valloc, as *vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) (*Stack, *errors.Error) {
	page := uintptr(mem.PageSize)
	outer, err := valloc.Allocate(size + 2*page)
	if err != nil {
		return nil, errors.Wrap(errors.StackAllocation, "reserve kernel stack region", err)
	}

	innerSize := (size + page - 1) &^ (page - 1)
	inner := addr.NewSegment[addr.Virtual](outer.Start.Add(addr.Offset(page)), innerSize)

	for v := inner.Start; v < inner.End; v = v.Add(addr.Offset(page)) {
		frame, ferr := allocFn()
		if ferr != nil {
			return nil, errors.Wrap(errors.StackAllocation, "back kernel stack page", ferr)
		}
		if merr := as.Map(v, frame, vmm.LevelPage, vmm.ReadWrite, vmm.Global, vmm.KernelPrivilege, allocFn); merr != nil {
			return nil, errors.Wrap(errors.StackAllocation, "map kernel stack page", merr)
		}
	}

	return &Stack{segment: outer, Top: inner.End}, nil
}

// NewUser maps initialSize bytes of read-write local-user memory at the
// start of the given user-space segment. Any remaining bytes in segment stay
// unmapped, reserved for a future demand-paging grow-on-fault path this
// kernel does not implement yet.
func NewUser(segment addr.Segment[addr.Virtual], initialSize uintptr, as *vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) (*Stack, *errors.Error) {
	page := uintptr(mem.PageSize)
	backedSize := (initialSize + page - 1) &^ (page - 1)
	backed := addr.NewSegment[addr.Virtual](segment.Start, backedSize)

	for v := backed.Start; v < backed.End; v = v.Add(addr.Offset(page)) {
		frame, ferr := allocFn()
		if ferr != nil {
			return nil, errors.Wrap(errors.StackAllocation, "back user stack page", ferr)
		}
		if merr := as.Map(v, frame, vmm.LevelPage, vmm.ReadWrite, vmm.Local, vmm.UserPrivilege, allocFn); merr != nil {
			return nil, errors.Wrap(errors.StackAllocation, "map user stack page", merr)
		}
	}

	return &Stack{segment: segment, Top: backed.End}, nil
}
