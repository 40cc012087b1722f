// Package boot implements the Go half of the boot sequencer: the
// linker-symbol accessors, the early trap vector installed before anything
// else exists, the image-layout computation that rebases the kernel's
// link-time (low) addresses into their high-half virtual counterparts, the
// helpers that map the image and the linear map of physical memory, and the
// paging-enable/bounce-vector pair that hands control to the kernel's
// high-half entry point. The assembly entry point itself (temporary stack,
// BSS zeroing, global pointer, tail call into the first Go function) is out
// of scope: it is a handful of instructions with no Go-expressible logic of
// its own.
package boot

import (
	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/kfmt"
	"rvos/kernel/mem"
	"rvos/kernel/mem/vmm"
	"rvos/kernel/sbi"
)

// KernelHalfBase is the first gigapage slot (VPN2 = 256) of the kernel half
// of the sv39 address space, and doubles as the base of the linear map: the
// linear map never needs more than KernelImageBase-KernelHalfBase bytes of
// room, and no machine this kernel targets carries that much RAM.
const KernelHalfBase = addr.Virtual(256) << mem.GigapageShift

// KernelImageBase is the top 1 GiB leaf slot (VPN2 = 511, the last entry of
// the root page table) of the sv39 virtual address space: the high-half
// virtual base the kernel image is rebased onto. Everything below it down to
// KernelHalfBase is available for the linear map, the heap region, and the
// kernel-stack region.
const KernelImageBase = addr.Virtual(511) << mem.GigapageShift

// LinearMapBase is the virtual base of the identity-offset map of all
// physical memory, used by vmm.ToVirtual once paging is enabled and by the
// frame allocator once it is rebased off the boot-time identity map.
const LinearMapBase = KernelHalfBase

// earlyTrapDispatchFn is called by earlyVectorEntry with the raw scause
// value. It is a package var, not a direct reference to
// defaultEarlyTrapDispatch, so a host test can observe a trap without
// actually halting the process.
var earlyTrapDispatchFn = defaultEarlyTrapDispatch

// earlyTrapDispatch is called from earlyVectorEntry's assembly with scause
// in a0; it never returns to its caller, since earlyVectorEntry halts right
// after the call.
func earlyTrapDispatch(cause uint64) {
	earlyTrapDispatchFn(cause)
}

func defaultEarlyTrapDispatch(cause uint64) {
	kfmt.Printf("\n[boot] unexpected trap before paging is enabled: scause=0x%x\n", cause)
	sbi.Shutdown(sbi.ResetFailure)
}

// ImageLayout describes the kernel image's low, link-time segments (text,
// read-only data, read-write data, BSS) and the constant byte offset that
// rebases any low address into its high-half virtual counterpart once
// paging is enabled.
type ImageLayout struct {
	Text, RoData, RwData, BSS addr.Segment[addr.Virtual]
	FreeStart                 addr.Virtual
	HighOffset                addr.Offset
}

// DiscoverImage reads the linker-provided symbols and computes the image's
// low-address segments plus the offset that rebases a low address into the
// high half the kernel runs at from the moment EnablePaging's bounce fires.
func DiscoverImage() ImageLayout {
	text := addr.NewSegment[addr.Virtual](addr.Virtual(TextStart()), TextEnd()-TextStart())
	roData := addr.NewSegment[addr.Virtual](addr.Virtual(RoDataStart()), RoDataEnd()-RoDataStart())
	rwData := addr.NewSegment[addr.Virtual](addr.Virtual(RwDataStart()), RwDataEnd()-RwDataStart())
	bss := addr.NewSegment[addr.Virtual](addr.Virtual(BSSStart()), BSSEnd()-BSSStart())

	return ImageLayout{
		Text:       text,
		RoData:     roData,
		RwData:     rwData,
		BSS:        bss,
		FreeStart:  addr.Virtual(FreeStart()),
		HighOffset: KernelImageBase.Sub(text.Start),
	}
}

// High rebases a low-address segment into its high-half virtual
// counterpart.
func (l ImageLayout) High(seg addr.Segment[addr.Virtual]) addr.Segment[addr.Virtual] {
	return seg.Shift(l.HighOffset)
}

// HighAddr rebases a single low virtual address.
func (l ImageLayout) HighAddr(v addr.Virtual) addr.Virtual {
	return v.Add(l.HighOffset)
}

// imageSection pairs one of the image's low-address segments with the
// permissions its mappings should carry.
type imageSection struct {
	seg  addr.Segment[addr.Virtual]
	perm vmm.Permissions
}

// MapImage maps every page of the kernel image at both its low, link-time
// address and its high-half counterpart, onto the same physical frames —
// before paging is enabled, a page's physical address and its low virtual
// address are numerically identical, so no frame allocation is needed for
// the image itself. The low mapping lets execution continue normally for
// the handful of instructions between EnablePaging's satp write and the
// bounce vector firing; the high mapping is what the kernel runs from
// afterwards. BSS is folded into the read-write section, widening it if BSS
// extends past RwData's own end, since the assembly entry point has already
// zeroed BSS at its low address and that zero content carries over to both
// mappings once they share the same physical frame.
func (l ImageLayout) MapImage(as *vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) *errors.Error {
	rw := l.RwData
	if l.BSS.End > rw.End {
		rw = addr.NewSegment[addr.Virtual](rw.Start, uintptr(l.BSS.End.Sub(rw.Start)))
	}

	sections := [3]imageSection{
		{l.Text, vmm.ReadExecute},
		{l.RoData, vmm.ReadOnly},
		{rw, vmm.ReadWrite},
	}

	page := addr.Offset(mem.PageSize)
	for _, sec := range sections {
		hv := l.HighAddr(sec.seg.Start)
		for v := sec.seg.Start; v < sec.seg.End; v = v.Add(page) {
			phys := addr.Physical(v.Uintptr())
			if err := as.Map(v, phys, vmm.LevelPage, sec.perm, vmm.Global, vmm.KernelPrivilege, allocFn); err != nil {
				return errors.Wrap(errors.InvalidMapping, "map image section at low address", err)
			}
			if err := as.Map(hv, phys, vmm.LevelPage, sec.perm, vmm.Global, vmm.KernelPrivilege, allocFn); err != nil {
				return errors.Wrap(errors.InvalidMapping, "map image section at high address", err)
			}
			hv = hv.Add(page)
		}
	}
	return nil
}

// MapLinear maps every page of physical memory in ram into the linear map
// at LinearMapBase, offset by its distance from ram.Start, as globally
// visible supervisor-only read-write memory. Once this mapping exists,
// LinearTranslator(ram.Start) is a correct replacement for the identity
// vmm.ToVirtual function boot started with.
func MapLinear(ram addr.Segment[addr.Physical], as *vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) *errors.Error {
	page := addr.Offset(mem.PageSize)
	for p := ram.Start; p < ram.End; p = p.Add(page) {
		v := LinearMapBase.Add(p.Sub(ram.Start))
		if err := as.Map(v, p, vmm.LevelPage, vmm.ReadWrite, vmm.Global, vmm.KernelPrivilege, allocFn); err != nil {
			return errors.Wrap(errors.InvalidMapping, "map linear-map page", err)
		}
	}
	return nil
}

// LinearTranslator returns the vmm.ToVirtual replacement that corresponds to
// a linear map built by MapLinear(ram, ...).
func LinearTranslator(ramStart addr.Physical) func(addr.Physical) addr.Virtual {
	return func(p addr.Physical) addr.Virtual {
		return LinearMapBase.Add(p.Sub(ramStart))
	}
}
