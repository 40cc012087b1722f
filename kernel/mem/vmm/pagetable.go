package vmm

import (
	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
)

// Level identifies one of the three sv39 translation levels, numbered from
// the root. LevelGiga terminates at a 1 GiB leaf, LevelMega at 2 MiB,
// LevelPage at 4 KiB — the only granularity the frame allocator itself deals
// in.
type Level uint8

const (
	LevelGiga Level = iota
	LevelMega
	LevelPage
)

func (l Level) pageSize() mem.Size {
	switch l {
	case LevelGiga:
		return mem.GigapageSize
	case LevelMega:
		return mem.MegapageSize
	default:
		return mem.PageSize
	}
}

// levelShift returns the bit position of the low end of the VPN field feeding
// translation level l.
func levelShift(l Level) uint {
	return uint(mem.PageShift) + uint(mem.PageLevels-1-int(l))*uint(mem.VPNBits)
}

func vpn(v addr.Virtual, l Level) uintptr {
	return (v.Uintptr() >> levelShift(l)) & ((1 << mem.VPNBits) - 1)
}

// table is the in-memory layout of one sv39 page table: 512 64-bit entries
// filling exactly one 4 KiB frame.
type table [1 << mem.VPNBits]entry

// FrameAllocatorFn allocates a single physical frame for use as a new
// page-table level.
type FrameAllocatorFn func() (addr.Physical, *errors.Error)

// ToVirtual converts a physical frame address holding a page table into a
// dereferenceable virtual address. Before paging is enabled this is the
// identity function; after boot rebases the frame allocator onto the linear
// map, Kmain repoints ToVirtual at the same offset. Tests install their own
// translator so page tables can live in ordinary host memory.
var ToVirtual = func(p addr.Physical) addr.Virtual {
	return addr.Virtual(p.Uintptr())
}

func tableAt(p addr.Physical) *table {
	return addr.PointerTo[table](ToVirtual(p))
}

func zeroTable(t *table) {
	for i := range t {
		t[i] = 0
	}
}
