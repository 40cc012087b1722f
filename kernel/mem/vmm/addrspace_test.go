package vmm

import (
	"testing"

	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
)

// hostFrames backs page tables and leaf "physical" frames with ordinary host
// memory so the walk can be exercised without real hardware. physical and
// virtual coincide here (ToVirtual is overridden to identity); only the
// page-table-entry bit manipulation is under test.
type hostFrames struct {
	buf  []byte
	base addr.Physical
	next uintptr
}

func newHostFrames(t *testing.T, frames int) *hostFrames {
	t.Helper()
	size := uintptr(frames+1) * uintptr(mem.PageSize)
	buf := make([]byte, size)
	base := addr.Physical(addr.FromPointer(&buf[0]).Uintptr()).AlignUp(uintptr(mem.PageSize))
	return &hostFrames{buf: buf, base: base}
}

func (h *hostFrames) alloc() (addr.Physical, *errors.Error) {
	f := h.base.Add(addr.Offset(h.next))
	h.next += uintptr(mem.PageSize)
	return f, nil
}

func withIdentityTranslator(t *testing.T) {
	t.Helper()
	prev := ToVirtual
	ToVirtual = func(p addr.Physical) addr.Virtual { return addr.Virtual(p.Uintptr()) }
	t.Cleanup(func() { ToVirtual = prev })
}

func TestMapTranslateRoundTrip(t *testing.T) {
	withIdentityTranslator(t)
	hf := newHostFrames(t, 8)

	root, err := hf.alloc()
	if err != nil {
		t.Fatalf("alloc root: %v", err)
	}
	as := New(KernelSpaceID, root)

	leaf, err := hf.alloc()
	if err != nil {
		t.Fatalf("alloc leaf: %v", err)
	}

	v := addr.Virtual(0x0000_0040_0000_1234)
	if mapErr := as.Map(v.AlignDown(uintptr(mem.PageSize)), leaf, LevelPage, ReadWriteExecute, Global, KernelPrivilege, hf.alloc); mapErr != nil {
		t.Fatalf("map: %v", mapErr)
	}

	phys, scope, priv, perm, transErr := as.Translate(v)
	if transErr != nil {
		t.Fatalf("translate: %v", transErr)
	}
	if want := leaf.Add(addr.Offset(v.Uintptr() & (uintptr(mem.PageSize) - 1))); phys != want {
		t.Fatalf("translate: got %#x want %#x", phys, want)
	}
	if scope != Global || priv != KernelPrivilege || perm != ReadWriteExecute {
		t.Fatalf("translate: got scope=%v priv=%v perm=%v", scope, priv, perm)
	}
}

func TestMapOverwritesExistingLeafSilently(t *testing.T) {
	withIdentityTranslator(t)
	hf := newHostFrames(t, 8)

	root, _ := hf.alloc()
	as := New(KernelSpaceID, root)

	leafA, _ := hf.alloc()
	leafB, _ := hf.alloc()
	v := addr.Virtual(0x1000)

	if err := as.Map(v, leafA, LevelPage, ReadWrite, Local, KernelPrivilege, hf.alloc); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if err := as.Map(v, leafB, LevelPage, ReadOnly, Local, KernelPrivilege, hf.alloc); err != nil {
		t.Fatalf("remap: %v", err)
	}

	phys, _, _, perm, err := as.Translate(v)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if phys != leafB || perm != ReadOnly {
		t.Fatalf("expected remap to win: got phys=%#x perm=%v", phys, perm)
	}
}

func TestMapDirectoryOverLeafIsCorruption(t *testing.T) {
	withIdentityTranslator(t)
	hf := newHostFrames(t, 8)

	root, _ := hf.alloc()
	as := New(KernelSpaceID, root)

	leaf, _ := hf.alloc()
	v := addr.Virtual(0)

	if err := as.Map(v, leaf, LevelGiga, ReadWrite, Local, KernelPrivilege, hf.alloc); err != nil {
		t.Fatalf("map giant leaf: %v", err)
	}

	other, _ := hf.alloc()
	if err := as.Map(v.Add(addr.Offset(mem.PageSize)), other, LevelPage, ReadOnly, Local, KernelPrivilege, hf.alloc); err == nil {
		t.Fatalf("expected corruption error when a directory is expected where a leaf already exists")
	} else if !err.Is(errors.PageTableCorruption) {
		t.Fatalf("expected PageTableCorruption, got %v", err.Kind)
	}
}

func TestUnmapInvalidatesLeaf(t *testing.T) {
	withIdentityTranslator(t)
	hf := newHostFrames(t, 8)

	root, _ := hf.alloc()
	as := New(KernelSpaceID, root)
	leaf, _ := hf.alloc()
	v := addr.Virtual(0x2000)

	if err := as.Map(v, leaf, LevelPage, ReadWrite, Local, KernelPrivilege, hf.alloc); err != nil {
		t.Fatalf("map: %v", err)
	}

	seg := addr.NewSegment[addr.Virtual](v, uintptr(mem.PageSize))
	if err := as.Unmap(seg); err != nil {
		t.Fatalf("unmap: %v", err)
	}

	if _, _, _, _, err := as.Translate(v); err == nil {
		t.Fatalf("expected translate to fail after unmap")
	}
}

func TestInheritKernelHalf(t *testing.T) {
	withIdentityTranslator(t)
	hf := newHostFrames(t, 8)

	kernelRoot, _ := hf.alloc()
	kernelSpace := New(KernelSpaceID, kernelRoot)
	leaf, _ := hf.alloc()

	kernelHalf := addr.Virtual(1) << 38 // top-half VPN2 index bit
	if err := kernelSpace.Map(kernelHalf, leaf, LevelGiga, ReadExecute, Global, KernelPrivilege, hf.alloc); err != nil {
		t.Fatalf("map kernel half: %v", err)
	}

	userRoot, _ := hf.alloc()
	userSpace := New(1, userRoot)
	userSpace.InheritKernelHalf(kernelSpace)

	phys, _, _, _, err := userSpace.Translate(kernelHalf)
	if err != nil {
		t.Fatalf("translate in user space: %v", err)
	}
	if phys != leaf {
		t.Fatalf("expected inherited mapping to resolve to %#x, got %#x", leaf, phys)
	}
}
