package goruntime

import (
	"reflect"
	"testing"
	"unsafe"

	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
	"rvos/kernel/mem/vmm"
)

func withTestValloc(t *testing.T, parentSize uintptr) {
	t.Helper()
	prevValloc := valloc
	v := vmm.NewValloc(addr.NewSegment[addr.Virtual](0x4000_0000, parentSize), uintptr(mem.PageSize))
	valloc = v
	t.Cleanup(func() { valloc = prevValloc })
}

func TestSysReserve(t *testing.T) {
	withTestValloc(t, 1024*uintptr(mem.PageSize))
	var reserved bool

	t.Run("success", func(t *testing.T) {
		specs := []struct {
			reqSize       mem.Size
			expRegionSize mem.Size
		}{
			{100 << mem.PageShift, 100 << mem.PageShift},
			{2*mem.PageSize - 1, 2 * mem.PageSize},
		}

		for specIndex, spec := range specs {
			withTestValloc(t, 1024*uintptr(mem.PageSize))
			ptr := sysReserve(nil, uintptr(spec.reqSize), &reserved)
			if uintptr(ptr) == 0 {
				t.Errorf("[spec %d] sysReserve returned 0", specIndex)
				continue
			}
			if !reserved {
				t.Errorf("[spec %d] expected reserved to be set", specIndex)
			}
		}
	})

	t.Run("fail", func(t *testing.T) {
		withTestValloc(t, uintptr(mem.PageSize))
		// Exhaust the tiny parent region first.
		if _, err := valloc.Allocate(uintptr(mem.PageSize)); err != nil {
			t.Fatalf("setup allocate: %v", err)
		}

		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected sysReserve to panic")
			}
		}()

		sysReserve(nil, uintptr(mem.PageSize), &reserved)
	})
}

func TestSysMap(t *testing.T) {
	defer func() {
		mapFn = defaultMap
		frameAllocFn = nil
	}()

	frameAllocFn = func() (addr.Physical, *errors.Error) {
		return addr.Physical(0x1000), nil
	}

	t.Run("success", func(t *testing.T) {
		specs := []struct {
			reqAddr         uintptr
			reqSize         mem.Size
			expRsvAddr      uintptr
			expMapCallCount int
		}{
			{100 << mem.PageShift, 4 * mem.PageSize, 100 << mem.PageShift, 4},
			{(100 << mem.PageShift) + 1, 4 * mem.PageSize, 101 << mem.PageShift, 4},
			{1 << mem.PageShift, (4 * mem.PageSize) + 1, 1 << mem.PageShift, 5},
		}

		for specIndex, spec := range specs {
			var sysStat uint64
			var mapCallCount int
			memsetFn = func(uintptr, byte, uintptr) { mapCallCount = mapCallCount } // keep signature exercised
			mapFn = func(addr.Virtual, addr.Physical) *errors.Error {
				mapCallCount++
				return nil
			}

			rsvPtr := sysMap(unsafe.Pointer(spec.reqAddr), uintptr(spec.reqSize), true, &sysStat)
			if got := uintptr(rsvPtr); got != spec.expRsvAddr {
				t.Errorf("[spec %d] expected mapped address 0x%x; got 0x%x", specIndex, spec.expRsvAddr, got)
			}
			if mapCallCount != spec.expMapCallCount {
				t.Errorf("[spec %d] expected map call count to be %d; got %d", specIndex, spec.expMapCallCount, mapCallCount)
			}
			if exp := uint64(spec.expMapCallCount) << mem.PageShift; sysStat != exp {
				t.Errorf("[spec %d] expected stat counter to be %d; got %d", specIndex, exp, sysStat)
			}
		}
	})

	t.Run("map fails", func(t *testing.T) {
		mapFn = func(addr.Virtual, addr.Physical) *errors.Error {
			return errors.New(errors.PageTableAllocation, "map failed")
		}

		var sysStat uint64
		if got := sysMap(unsafe.Pointer(uintptr(0xbadf000)), 1, true, &sysStat); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysMap to return 0x0 if the map fails; got 0x%x", uintptr(got))
		}
	})

	t.Run("panic if not reserved", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected sysMap to panic")
			}
		}()

		sysMap(nil, 0, false, nil)
	})
}

func TestSysAlloc(t *testing.T) {
	defer func() {
		mapFn = defaultMap
		memsetFn = kernelMemset
		frameAllocFn = nil
	}()

	t.Run("success", func(t *testing.T) {
		specs := []struct {
			reqSize         mem.Size
			expMapCallCount int
		}{
			{4 * mem.PageSize, 4},
			{(4 * mem.PageSize) + 1, 5},
		}

		for specIndex, spec := range specs {
			withTestValloc(t, 1024*uintptr(mem.PageSize))

			var (
				sysStat         uint64
				mapCallCount    int
				memsetCallCount int
			)

			frameAllocFn = func() (addr.Physical, *errors.Error) {
				return addr.Physical(0x1000), nil
			}
			memsetFn = func(uintptr, byte, uintptr) { memsetCallCount++ }
			mapFn = func(addr.Virtual, addr.Physical) *errors.Error {
				mapCallCount++
				return nil
			}

			got := sysAlloc(uintptr(spec.reqSize), &sysStat)
			if uintptr(got) == 0 {
				t.Errorf("[spec %d] sysAlloc returned 0", specIndex)
			}
			if mapCallCount != spec.expMapCallCount {
				t.Errorf("[spec %d] expected map call count to be %d; got %d", specIndex, spec.expMapCallCount, mapCallCount)
			}
			if memsetCallCount != spec.expMapCallCount {
				t.Errorf("[spec %d] expected memset call count to be %d; got %d", specIndex, spec.expMapCallCount, memsetCallCount)
			}
			if exp := uint64(spec.expMapCallCount) << mem.PageShift; sysStat != exp {
				t.Errorf("[spec %d] expected stat counter to be %d; got %d", specIndex, exp, sysStat)
			}
		}
	})

	t.Run("valloc exhausted", func(t *testing.T) {
		withTestValloc(t, uintptr(mem.PageSize))
		if _, err := valloc.Allocate(uintptr(mem.PageSize)); err != nil {
			t.Fatalf("setup allocate: %v", err)
		}

		var sysStat uint64
		if got := sysAlloc(uintptr(mem.PageSize), &sysStat); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysAlloc to return 0x0 when valloc is exhausted; got 0x%x", uintptr(got))
		}
	})

	t.Run("frame allocation fails", func(t *testing.T) {
		withTestValloc(t, 1024*uintptr(mem.PageSize))
		frameAllocFn = func() (addr.Physical, *errors.Error) {
			return 0, errors.New(errors.OutOfPhysicalFrames, "arena exhausted")
		}

		var sysStat uint64
		if got := sysAlloc(uintptr(mem.PageSize), &sysStat); got != unsafe.Pointer(uintptr(0)) {
			t.Fatalf("expected sysAlloc to return 0x0 if frame allocation fails; got 0x%x", uintptr(got))
		}
	})
}

func kernelMemset(addr uintptr, value byte, size uintptr) {
	// A no-op stand-in for memutil.Memset, installed once TestSysAlloc is
	// done so later tests never write through the fake addresses it mapped.
	_ = addr
	_ = value
	_ = size
}

func TestGetRandomData(t *testing.T) {
	sample1 := make([]byte, 128)
	sample2 := make([]byte, 128)

	getRandomData(sample1)
	getRandomData(sample2)

	if reflect.DeepEqual(sample1, sample2) {
		t.Fatal("expected getRandomData to return different values for each invocation")
	}
}

func TestInit(t *testing.T) {
	defer func() {
		mallocInitFn = mallocInit
		algInitFn = algInit
		modulesInitFn = modulesInit
		typeLinksInitFn = typeLinksInit
		itabsInitFn = itabsInit
		procResizeFn = procResize
	}()

	mallocInitFn = func() {}
	algInitFn = func() {}
	modulesInitFn = func() {}
	typeLinksInitFn = func() {}
	itabsInitFn = func() {}
	procResizeFn = func(int32) uintptr { return 0 }

	if err := Init(); err != nil {
		t.Fatal(err)
	}
}
