package syscall

import (
	"testing"

	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/exec"
	"rvos/kernel/mem"
	"rvos/kernel/mem/vmm"
	"rvos/kernel/sbi"
	"rvos/kernel/sched"
	"rvos/kernel/trap"
)

// hostFrames is a bump allocator over host memory standing in for the real
// physical-frame allocator, the same idiom kernel/exec's own tests use.
type hostFrames struct {
	arena []byte
	next  uintptr
}

func newHostFrames(frames int) *hostFrames {
	return &hostFrames{arena: make([]byte, frames*int(mem.PageSize))}
}

func (f *hostFrames) alloc() (addr.Physical, *errors.Error) {
	if f.next+uintptr(mem.PageSize) > uintptr(len(f.arena)) {
		return 0, errors.New(errors.OutOfPhysicalFrames, "host frame arena exhausted")
	}
	p := addr.FromPointer(&f.arena[f.next])
	f.next += uintptr(mem.PageSize)
	return addr.Physical(p.Uintptr()), nil
}

func withIdentityTranslator(t *testing.T) {
	t.Helper()
	prev := vmm.ToVirtual
	vmm.ToVirtual = func(p addr.Physical) addr.Virtual { return addr.Virtual(p.Uintptr()) }
	t.Cleanup(func() { vmm.ToVirtual = prev })
}

func withFakeUserMemoryAccess(t *testing.T) {
	t.Helper()
	prevEnable, prevDisable := enableUserMemoryAccessFn, disableUserMemoryAccessFn
	enableUserMemoryAccessFn = func() bool { return false }
	disableUserMemoryAccessFn = func() bool { return false }
	t.Cleanup(func() {
		enableUserMemoryAccessFn, disableUserMemoryAccessFn = prevEnable, prevDisable
	})
}

func withFakeConsole(t *testing.T) *[]byte {
	t.Helper()
	var out []byte
	prev := sbi.SetCallFn(func(ext, fn uint64, args [6]uint64) (int64, uint64) {
		out = append(out, byte(args[0]))
		return 0, 0
	})
	t.Cleanup(func() { sbi.SetCallFn(prev) })
	return &out
}

func newTestExecutor(t *testing.T) *exec.Executor {
	t.Helper()
	withIdentityTranslator(t)

	frames := newHostFrames(64)
	root, err := frames.alloc()
	if err != nil {
		t.Fatal(err)
	}
	kernelAS := vmm.New(vmm.KernelSpaceID, root)

	region := addr.NewSegment[addr.Virtual](0x4000_0000, 0x40_0000)
	stackValloc := vmm.NewValloc(region, uintptr(mem.PageSize))

	return exec.New(kernelAS, stackValloc, frames.alloc, sched.NewFIFO(), 10_000_000)
}

func TestDispatchExitMarksThreadFinished(t *testing.T) {
	e := newTestExecutor(t)

	tid, err := e.Spawn(func(uintptr) uintptr { return 0 }, 0)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	e.Resume(&trap.Context{}) // picks tid as the running thread

	ctx := &trap.Context{}
	ctx.GPR[a7Reg] = NumberExit
	ctx.GPR[a0Reg] = 42

	Dispatch(ctx, e)

	status, jerr := e.Join(tid)
	if jerr != nil {
		t.Fatalf("join: %v", jerr)
	}
	if status != 42 {
		t.Fatalf("expected exit status 42, got %d", status)
	}
}

func TestDispatchPrintWritesValidUTF8(t *testing.T) {
	withFakeUserMemoryAccess(t)
	out := withFakeConsole(t)

	msg := []byte("hello")
	ctx := &trap.Context{}
	ctx.GPR[a7Reg] = NumberPrint
	ctx.GPR[a0Reg] = addr.FromPointer(&msg[0]).Uintptr()
	ctx.GPR[a1Reg] = uint64(len(msg))

	Dispatch(ctx, nil)

	if string(*out) != "hello" {
		t.Fatalf("expected console to receive %q, got %q", "hello", *out)
	}
	if ctx.GPR[a0Reg] != printOK {
		t.Fatalf("expected printOK return, got %d", ctx.GPR[a0Reg])
	}
}

func TestDispatchPrintRejectsInvalidUTF8(t *testing.T) {
	withFakeUserMemoryAccess(t)
	withFakeConsole(t)

	msg := []byte{0xff, 0xfe}
	ctx := &trap.Context{}
	ctx.GPR[a7Reg] = NumberPrint
	ctx.GPR[a0Reg] = addr.FromPointer(&msg[0]).Uintptr()
	ctx.GPR[a1Reg] = uint64(len(msg))

	Dispatch(ctx, nil)

	if ctx.GPR[a0Reg] != printInvalid {
		t.Fatalf("expected printInvalid return, got %d", ctx.GPR[a0Reg])
	}
}

func TestDispatchUnknownNumberReturnsNegativeOne(t *testing.T) {
	ctx := &trap.Context{}
	ctx.GPR[a7Reg] = 99

	Dispatch(ctx, nil)

	if int64(ctx.GPR[a0Reg]) != -1 {
		t.Fatalf("expected -1, got %d", int64(ctx.GPR[a0Reg]))
	}
}
