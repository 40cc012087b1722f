// Package kernel sequences the boot process, from the first Go instruction
// run with paging disabled through handing the core off to the scheduler,
// and owns the one global Executor, interrupt controller, and kernel
// address space every hart-local trap eventually dispatches through.
package kernel

import (
	"reflect"

	"golang.org/x/mod/semver"

	"rvos/kernel/addr"
	"rvos/kernel/boot"
	"rvos/kernel/errors"
	"rvos/kernel/exec"
	"rvos/kernel/goruntime"
	"rvos/kernel/kfmt"
	"rvos/kernel/mem"
	"rvos/kernel/mem/heap"
	"rvos/kernel/mem/pmm"
	"rvos/kernel/mem/vmm"
	"rvos/kernel/plic"
	"rvos/kernel/sbi"
	"rvos/kernel/sched"
	"rvos/kernel/sync"
	"rvos/kernel/syscall"
	"rvos/kernel/trap"
)

// Version is stamped into the boot banner and checked against
// minBootProtocolVersion, the same defensive check a production kernel image
// performs against its bootloader's expected ABI version before trusting the
// device tree pointer the firmware handed it.
const Version = "v0.1.0"

// minBootProtocolVersion is the oldest Version this boot sequence (FDT
// layout, bounce-vector ABI) is known to still implement correctly.
const minBootProtocolVersion = "v0.1.0"

const (
	// timerFreqHz is the frequency QEMU's virt machine drives the
	// supervisor timer at; a real board would read this from the device
	// tree's "timebase-frequency" property instead.
	timerFreqHz = 10_000_000

	// plicBase and plicSize match QEMU's virt machine memory map.
	plicBase = addr.Physical(0x0c00_0000)
	plicSize = uintptr(0x0040_0000)

	// heapSize is the kernel heap's fixed arena size. The free-list
	// allocator never grows it once built.
	heapSize = 8 * uintptr(mem.Mb)

	// linearMapReserve bounds how much of the kernel half is set aside for
	// the linear map, regardless of how much RAM DiscoverImage's caller
	// actually finds; no board this kernel targets carries more.
	linearMapReserve = addr.Offset(64) << mem.GigapageShift

	// uartIRQ is the PLIC source number QEMU's virt machine wires the
	// 16550 UART to. Nothing currently registers an ISR for it; the
	// console is driven synchronously through the firmware-call console
	// extension instead.
	uartIRQ = 10
)

// bootState carries everything gathered before paging is enabled across
// boot.EnablePaging's bounce into kmainHigh: the bounce vector takes no
// arguments, so there is no other way to hand data across it.
var bootState struct {
	hartID uint64
	ram    addr.Segment[addr.Physical]
	layout boot.ImageLayout
}

// Kmain is the kernel's single entry point, called once, on the boot hart,
// by the assembly boot stub with paging disabled. It never returns.
func Kmain(hartID uint64, deviceTreePtr uintptr) {
	kfmt.SetOutputSink(sbi.Console{})
	kfmt.SetHaltFn(sbi.HartStop)
	boot.InstallEarlyVector()

	kfmt.Printf("rvos %s (%s) hart %d booting\n", Version, semver.Major(Version), hartID)
	if !semver.IsValid(Version) {
		kfmt.Panic("kernel.Version is not a valid semantic version")
	}
	if semver.Compare(Version, minBootProtocolVersion) < 0 {
		kfmt.Panic("kernel.Version is older than the minimum supported boot protocol version")
	}

	ram, err := boot.RAMFromDeviceTree(deviceTreePtr)
	if err != nil {
		kfmt.Panic(err)
	}
	layout := boot.DiscoverImage()

	frameArena := addr.NewSegment[addr.Physical](addr.Physical(layout.FreeStart.Uintptr()), uintptr(ram.End.Sub(addr.Physical(layout.FreeStart.Uintptr()))))
	frames.Init(frameArena, 0)

	root, ferr := allocFrame()
	if ferr != nil {
		kfmt.Panic(ferr)
	}
	kernelAS = vmm.New(vmm.KernelSpaceID, root)

	if merr := layout.MapImage(kernelAS, allocFrame); merr != nil {
		kfmt.Panic(merr)
	}
	if merr := boot.MapLinear(ram, kernelAS, allocFrame); merr != nil {
		kfmt.Panic(merr)
	}

	satp := vmm.ConfigWord(vmm.ModeSv39, vmm.KernelSpaceID, kernelAS.Root)

	bootState.hartID = hartID
	bootState.ram = ram
	bootState.layout = layout

	highEntry := layout.HighAddr(addr.Virtual(reflect.ValueOf(kmainHigh).Pointer()))
	boot.InstallBounceVector(highEntry.Uintptr())
	boot.EnablePaging(satp)

	panic("unreachable: EnablePaging does not return")
}

// frames and frameLock back allocFrame, the vmm.FrameAllocatorFn every
// mapping call in this package and the packages it wires together uses.
var (
	frameLock  sync.Spinlock
	frames     pmm.Allocator
	kernelAS   *vmm.AddressSpace
	kernelHeap *heap.Heap
)

func allocFrame() (addr.Physical, *errors.Error) {
	frameLock.Acquire()
	defer frameLock.Release()
	return frames.Allocate()
}

// kmainHigh is where the one-shot bounce vector installed by Kmain lands,
// running at the kernel image's high-half address with paging enabled. It
// finishes bringing up the kernel's ambient services — the linear map
// translator, the Go runtime, the heap, the interrupt controller, the trap
// handler — and finally hands off to the scheduler via Executor.Handoff,
// which returns only if spawning the idle thread fails.
func kmainHigh() {
	ram, layout := bootState.ram, bootState.layout

	linOffset := boot.LinearMapBase.Sub(addr.Virtual(ram.Start.Uintptr()))
	frames.Rebase(ram, linOffset)
	vmm.ToVirtual = boot.LinearTranslator(ram.Start)

	regionBase := boot.LinearMapBase.Add(linearMapReserve)
	regionValloc := vmm.NewValloc(addr.NewSegment[addr.Virtual](regionBase, uintptr(boot.KernelImageBase.Sub(regionBase))), uintptr(mem.PageSize))

	goruntime.Configure(kernelAS, regionValloc, allocFrame)
	if gerr := goruntime.Init(); gerr != nil {
		kfmt.Panic(gerr)
	}

	heapSeg, herr := regionValloc.Allocate(heapSize)
	if herr != nil {
		kfmt.Panic(herr)
	}
	if merr := mapRegion(heapSeg); merr != nil {
		kfmt.Panic(merr)
	}
	var herr2 error
	kernelHeap, herr2 = heap.New(heapSeg)
	if herr2 != nil {
		kfmt.Panic(herr2)
	}

	plicVirt, perr := regionValloc.Allocate(plicSize)
	if perr != nil {
		kfmt.Panic(perr)
	}
	for v, p := plicVirt.Start, plicBase; v < plicVirt.End; v, p = v.Add(addr.Offset(mem.PageSize)), p.Add(addr.Offset(mem.PageSize)) {
		if merr := kernelAS.Map(v, p, vmm.LevelPage, vmm.ReadWrite, vmm.Global, vmm.KernelPrivilege, allocFrame); merr != nil {
			kfmt.Panic(merr)
		}
	}
	plicCtl := plic.New(plicVirt.Start)
	plicCtl.SetPriority(uartIRQ, 1)
	plicCtl.SetThreshold(0)
	plicCtl.Enable(uartIRQ, true)

	quantumCycles := exec.CyclesPerQuantum(timerFreqHz)
	ex := exec.New(kernelAS, regionValloc, allocFrame, sched.NewRoundRobin(), timerFreqHz)
	exec.SetCurrentExecutor(ex)

	trap.SetHandler(func(ctx *trap.Context, cause trap.Cause, trapValue uint64) *trap.Context {
		switch {
		case cause == trap.CauseSupervisorTimer:
			ex.Tick()
			next := ex.Resume(ctx)
			sbi.SetTimer(quantumCycles)
			return next

		case cause == trap.CauseSupervisorExternal:
			if irq, ok := plicCtl.Claim(); ok {
				if isr, ok := plicCtl.ISR(irq); ok {
					isr(irq)
				}
				plicCtl.Complete(irq)
			}
			return ctx

		case cause == trap.CauseEnvCallFromUser:
			ctx.PC += 4
			syscall.Dispatch(ctx, ex)
			return ex.Resume(ctx)

		default:
			kfmt.Printf("\n[panic] unhandled trap: cause=%#x value=%#x pc=%#x\n", uint64(cause), trapValue, ctx.PC)
			sbi.Shutdown(sbi.ResetFailure)
			return ctx
		}
	})

	heapStats := kernelHeap.Stats()
	kfmt.Printf("rvos %s hart %d: %d MiB RAM, heap %d/%d bytes free, handing off\n", Version, bootState.hartID, ram.Size()/uintptr(mem.Mb), heapStats.Free, heapStats.Total)

	if herr3 := ex.Handoff(idleThread, 0); herr3 != nil {
		kfmt.Panic(herr3)
	}
}

func mapRegion(seg addr.Segment[addr.Virtual]) *errors.Error {
	page := addr.Offset(mem.PageSize)
	for v := seg.Start; v < seg.End; v = v.Add(page) {
		frame, ferr := allocFrame()
		if ferr != nil {
			return errors.Wrap(errors.OutOfPhysicalFrames, "back kernel region page", ferr)
		}
		if merr := kernelAS.Map(v, frame, vmm.LevelPage, vmm.ReadWrite, vmm.Global, vmm.KernelPrivilege, allocFrame); merr != nil {
			return errors.Wrap(errors.PageTableAllocation, "map kernel region page", merr)
		}
	}
	return nil
}

// idleThread is the kernel's first scheduled thread. Real workloads are
// loaded by a future Executor.Exec call from a console command or an
// embedded image; until one exists, the idle thread simply parks the hart
// between timer ticks.
func idleThread(uintptr) uintptr {
	trap.EnableInterrupts()
	trap.WaitForInterrupt()
	return 0
}
