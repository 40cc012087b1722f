// Package syscall implements the kernel's numbered system-call surface:
// dispatch on the number a trapped ecall left in a7, argument registers a0
// and a1, and a return value written back into a0. It is deliberately tiny —
// exit and print are the only two numbers this kernel defines.
package syscall

import (
	"unicode/utf8"
	"unsafe"

	"rvos/kernel/exec"
	"rvos/kernel/sbi"
	"rvos/kernel/trap"
)

// Register indices into trap.Context.GPR, numbered the same way trap.Context
// itself is: index i holds architectural register x(i+1).
const (
	a0Reg = 9  // x10
	a1Reg = 10 // x11
	a7Reg = 16 // x17
)

// Numbers the kernel's syscall layer understands. Any other value dispatched
// returns -1 without taking any action.
const (
	NumberExit  = 0
	NumberPrint = 1
)

const (
	printOK      = 0
	printInvalid = 1
	unknownRet   = ^uint64(0) // -1 as seen through a0
)

// enableUserMemoryAccessFn and disableUserMemoryAccessFn wrap the real
// trap.Enable/DisableUserMemoryAccess as package vars, the same override
// idiom kernel/sbi and kernel/mem/vmm use for their own hardware-touching
// primitives, so print's copy path is exercisable against a host byte slice
// in tests without flipping a real sstatus bit.
var (
	enableUserMemoryAccessFn  = trap.EnableUserMemoryAccess
	disableUserMemoryAccessFn = trap.DisableUserMemoryAccess
)

// Dispatch handles one environment-call trap from user mode. ex.Exit marks
// the calling thread Finished for NumberExit; the caller (the trap handler's
// high-level half) is responsible for bumping ctx.PC past the ecall
// instruction and for calling ex.Resume afterwards — exit takes effect only
// once Resume next picks a different thread to run.
func Dispatch(ctx *trap.Context, ex *exec.Executor) {
	switch ctx.GPR[a7Reg] {
	case NumberExit:
		ex.Exit(uintptr(ctx.GPR[a0Reg]))
	case NumberPrint:
		ctx.GPR[a0Reg] = print(uintptr(ctx.GPR[a0Reg]), uintptr(ctx.GPR[a1Reg]))
	default:
		ctx.GPR[a0Reg] = unknownRet
	}
}

// print copies len bytes from the user pointer ptr, which lives in whatever
// address space is current at the time of the trap (unchanged since entry),
// validates them as UTF-8, and writes them one at a time through the
// firmware console. It returns printOK on success or printInvalid if the
// bytes are not well-formed text, without writing anything to the console in
// that case.
func print(ptr, length uintptr) uint64 {
	prev := enableUserMemoryAccessFn()
	defer func() {
		if !prev {
			disableUserMemoryAccessFn()
		}
	}()

	data := userBytes(ptr, length)
	if !utf8.Valid(data) {
		return printInvalid
	}
	for _, b := range data {
		sbi.ConsolePutByte(b)
	}
	return printOK
}

func userBytes(ptr, length uintptr) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
}
