package vmm

import (
	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
)

// KernelSpaceID is the address-space identifier reserved for the single,
// global kernel address space.
const KernelSpaceID = 0

// AddressSpace owns a root page table and the ASID the MMU tags translations
// through it with. The kernel space is one particular AddressSpace shared by
// every hart; user processes each get their own, seeded with the kernel
// space's upper-half entries so kernel code and data stay mapped (and
// global, so the TLB need not flush them) across an address-space switch.
type AddressSpace struct {
	ID   uint16
	Root addr.Physical
}

// New builds an address space rooted at a freshly allocated, zeroed frame.
func New(id uint16, root addr.Physical) *AddressSpace {
	zeroTable(tableAt(root))
	return &AddressSpace{ID: id, Root: root}
}

// InheritKernelHalf copies the upper half of kernel's root table — the
// kernel-image, linear-map, heap, and kernel-stack mappings — into as,
// giving a new user address space the same kernel view without re-walking
// any of it.
func (as *AddressSpace) InheritKernelHalf(kernelSpace *AddressSpace) {
	dst := tableAt(as.Root)
	src := tableAt(kernelSpace.Root)
	half := len(src) / 2
	for i := half; i < len(src); i++ {
		dst[i] = src[i]
	}
}

// Map walks the root table, allocating directory frames with allocFn as
// needed, until it reaches level, then writes a leaf entry there. Writing
// over an existing leaf is silent (boot uses this to re-home mappings after
// enabling paging); writing where a directory is already present is a
// page-table-corruption error, as is encountering a leaf where a directory
// was expected.
func (as *AddressSpace) Map(v addr.Virtual, p addr.Physical, level Level, perm Permissions, scope Scope, priv Privilege, allocFn FrameAllocatorFn) *errors.Error {
	t := tableAt(as.Root)

	for l := LevelGiga; l < level; l++ {
		idx := vpn(v, l)
		e := t[idx]
		switch {
		case !e.valid():
			frame, err := allocFn()
			if err != nil {
				return errors.Wrap(errors.PageTableAllocation, "allocate page-table directory frame", err)
			}
			zeroTable(tableAt(frame))
			t[idx] = makeDirectory(frame, scope)
		case e.leaf():
			return errors.New(errors.PageTableCorruption, "directory slot already holds a leaf entry")
		}
		t = tableAt(t[idx].frame())
	}

	idx := vpn(v, level)
	if t[idx].valid() && !t[idx].leaf() {
		return errors.New(errors.PageTableCorruption, "leaf slot already holds a directory entry")
	}
	t[idx] = makeLeaf(p, perm, scope, priv)
	return nil
}

// Translate descends the table while entries are valid directories, and
// returns the first leaf it finds, reconstructing the full physical address
// from the leaf's frame plus the intra-page bits of v.
func (as *AddressSpace) Translate(v addr.Virtual) (addr.Physical, Scope, Privilege, Permissions, *errors.Error) {
	t := tableAt(as.Root)

	for l := LevelGiga; ; l++ {
		idx := vpn(v, l)
		e := t[idx]
		if !e.valid() {
			return 0, 0, 0, 0, errors.New(errors.InvalidMapping, "virtual address is not mapped")
		}
		if e.leaf() {
			offsetMask := uintptr(l.pageSize()) - 1
			phys := e.frame().Add(addr.Offset(v.Uintptr() & offsetMask))
			return phys, e.scope(), e.privilege(), e.permissions(), nil
		}
		if l == LevelPage {
			return 0, 0, 0, 0, errors.New(errors.PageTableCorruption, "walk reached the leaf level without finding a leaf entry")
		}
		t = tableAt(e.frame())
	}
}

// Unmap overwrites the leaf entry covering every 4 KiB page of seg with an
// invalid entry. The caller guarantees the region is actually mapped and
// otherwise unused; TLB invalidation is the caller's responsibility.
func (as *AddressSpace) Unmap(seg addr.Segment[addr.Virtual]) *errors.Error {
	step := addr.Offset(mem.PageSize)
	for v := seg.Start; v < seg.End; v = v.Add(step) {
		t := tableAt(as.Root)
		found := false
		for l := LevelGiga; l <= LevelPage; l++ {
			idx := vpn(v, l)
			e := &t[idx]
			if !e.valid() {
				return errors.New(errors.InvalidMapping, "unmap of an address that is not mapped")
			}
			if e.leaf() {
				*e = 0
				found = true
				break
			}
			t = tableAt(e.frame())
		}
		if !found {
			return errors.New(errors.PageTableCorruption, "walk reached the leaf level without finding a leaf entry")
		}
	}
	return nil
}
