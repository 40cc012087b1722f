// Package goruntime bootstraps Go runtime features — the heap allocator,
// maps, interfaces — so that ordinary make/new/map/slice/interface code
// works inside the kernel once paging is live. It is adapted from
// gopheros's kernel/goruntime/bootstrap.go: the go:linkname hooks the Go
// runtime calls out to (sysReserve/sysMap/sysAlloc/mallocinit/...) are
// unchanged in name and shape, but each is re-wired from gopheros's x86
// vmm.Map/vmm.Page onto this kernel's sv39 kernel/mem/vmm.AddressSpace and
// kernel/mem/pmm.Allocator.
package goruntime

import (
	"unsafe"

	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
	"rvos/kernel/mem/vmm"
	"rvos/kernel/memutil"
)

var (
	// addressSpace and valloc are the kernel address space and the
	// virtual-address allocator Configure wires in; both must be set
	// before any reserve/map/alloc hook below is exercised.
	addressSpace *vmm.AddressSpace
	valloc       *vmm.Valloc
	frameAllocFn vmm.FrameAllocatorFn
	memsetFn     = memutil.Memset

	// mapFn installs one leaf mapping; it is a package var, rather than a
	// direct addressSpace.Map call, purely so tests can substitute a
	// counting stub instead of touching real (host) memory.
	mapFn = defaultMap

	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit
	procResizeFn    = procResize

	// prngSeed seeds the pseudo-random number generator getRandomData
	// falls back to; there is no hardware RNG or /dev/random available.
	prngSeed = 0xdeadc0de
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

//go:linkname procResize runtime.procresize
func procResize(int32) uintptr

// Configure wires the goruntime bootstrap to the kernel's live address
// space and allocators. Kmain calls this once paging is enabled and the
// heap-region valloc and frame allocator exist, before calling Init.
func Configure(as *vmm.AddressSpace, v *vmm.Valloc, allocFrame vmm.FrameAllocatorFn) {
	addressSpace, valloc, frameAllocFn = as, v, allocFrame
}

func pageRoundUp(n uintptr) uintptr {
	page := uintptr(mem.PageSize)
	return (n + page - 1) &^ (page - 1)
}

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings. It replaces runtime.sysReserve.
//
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	seg, err := valloc.Allocate(pageRoundUp(size))
	if err != nil {
		panic(err)
	}

	*reserved = true
	return unsafe.Pointer(seg.Start.Uintptr())
}

// sysMap backs a region previously reserved by sysReserve with freshly
// allocated, zeroed, read-write kernel-global frames. This kernel does no
// demand paging or copy-on-write, so sysMap allocates and zeroes the real
// frames up front, exactly as sysAlloc does, rather than mapping a shared
// zero page and deferring real backing to the first write fault.
//
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	regionStart := addr.Virtual(uintptr(virtAddr)).AlignUp(uintptr(mem.PageSize))
	regionSize := pageRoundUp(size)

	if !backRegion(regionStart, regionSize) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(regionStart.Uintptr())
}

// sysAlloc reserves a fresh virtual region and backs it with zeroed
// read-write kernel-global frames in one step. It replaces runtime.sysAlloc.
//
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := pageRoundUp(size)
	seg, err := valloc.Allocate(regionSize)
	if err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	if !backRegion(seg.Start, regionSize) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(seg.Start.Uintptr())
}

// backRegion maps regionSize bytes starting at start with fresh, zeroed
// frames, read-write, global, kernel privilege.
func backRegion(start addr.Virtual, regionSize uintptr) bool {
	page := addr.Offset(mem.PageSize)
	for v := start; uintptr(v.Sub(start)) < regionSize; v = v.Add(page) {
		frame, ferr := frameAllocFn()
		if ferr != nil {
			return false
		}
		if merr := mapFn(v, frame); merr != nil {
			return false
		}
		memsetFn(v.Uintptr(), 0, uintptr(mem.PageSize))
	}
	return true
}

// defaultMap is mapFn's real implementation: a single read-write,
// kernel-global, kernel-privilege leaf mapping in the live kernel address
// space Configure installed.
func defaultMap(v addr.Virtual, p addr.Physical) *errors.Error {
	return addressSpace.Map(v, p, vmm.LevelPage, vmm.ReadWrite, vmm.Global, vmm.KernelPrivilege, frameAllocFn)
}

// nanotime returns a monotonically increasing clock value. It replaces
// runtime.nanotime; a real timestamp awaits a timekeeper built on the
// firmware timer, which this kernel does not yet expose as a clock source.
//
//go:nosplit
func nanotime() uint64 {
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData populates r with pseudo-random bytes. It replaces
// runtime.getRandomData; no hardware entropy source is available pre-console.
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables the Go runtime features the rest of the kernel depends on:
// heap allocation (new, make), map primitives, and interfaces. Kmain calls
// it once, immediately after Configure, and before any other package uses
// those features.
func Init() *errors.Error {
	mallocInitFn()
	algInitFn()       // hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules
	procResizeFn(1)   // single hart: GOMAXPROCS is always 1

	return nil
}

// keepAlive holds function values for sysReserve/sysMap/sysAlloc/nanotime/
// getRandomData so the compiler never treats them as unreachable before the
// go:linkname machinery resolves the runtime's calls into them. Calling them
// directly instead, with dummy zero-sized arguments, would dereference
// addressSpace/valloc before Kmain ever calls Configure.
var keepAlive = []interface{}{sysReserve, sysMap, sysAlloc, nanotime, getRandomData}
