// Package trap implements the save/restore register file and cause-based
// dispatch half of the kernel's trap core. The other half — the leaf
// assembly shim that actually swaps stacks and spills registers — lives in
// trap_riscv64.s and is declared without a body in trap_riscv64.go.
package trap

// interruptBit is set in scause when the trap was an interrupt rather than
// an exception.
const interruptBit = 1 << 63

// Cause is the raw value of the scause control register at trap entry.
type Cause uint64

// IsInterrupt reports whether c represents an asynchronous interrupt as
// opposed to a synchronous exception.
func (c Cause) IsInterrupt() bool { return c&interruptBit != 0 }

// Code returns the cause with the interrupt bit stripped, suitable for
// comparison against the Cause* constants below.
func (c Cause) Code() uint64 { return uint64(c &^ interruptBit) }

const (
	// CauseSupervisorTimer fires when the supervisor timer compare value is
	// reached; the handler rearms it and calls into the executor.
	CauseSupervisorTimer Cause = interruptBit | 5
	// CauseSupervisorExternal fires on an external interrupt signaled
	// through the platform interrupt controller.
	CauseSupervisorExternal Cause = interruptBit | 9
	// CauseEnvCallFromUser is raised synchronously by the ecall
	// instruction executed in user mode.
	CauseEnvCallFromUser Cause = 8
)

// Privilege is the privilege level the hart was running at when the trap
// occurred.
type Privilege uint8

const (
	PrivilegeUser Privilege = iota
	PrivilegeSupervisor
)

// Context is a complete snapshot of a thread's machine state: the 31
// general-purpose registers (x1-x31; x0 is hardwired to zero and never
// saved), the faulting or resuming program counter, the privilege level, and
// the MMU configuration word (mode, ASID, and root page-table frame) that
// must be installed for this thread to run.
type Context struct {
	GPR       [31]uint64
	PC        uint64
	Privilege Privilege
	MMUConfig uint64
}

// Handler is the high-level trap handler. It receives the context the
// assembly shim just saved along with the hardware cause and trap-value
// registers, and returns the context to resume — which may be a different
// thread's context than the one passed in; that substitution is how a
// context switch happens.
type Handler func(ctx *Context, cause Cause, trapValue uint64) *Context

var installed Handler

// SetHandler installs the kernel's single high-level trap handler. Kmain
// calls this once, after the scheduler, executor, and interrupt-controller
// shim exist, with a closure that dispatches on cause: timer interrupts and
// syscall traps go to the executor, external interrupts go to the interrupt
// controller's registered routines, everything else is fatal.
func SetHandler(h Handler) { installed = h }

// Dispatch is called by the assembly shim with the just-saved context. It is
// a thin trampoline to the installed Handler so the shim itself never needs
// to know about scheduling or syscalls.
func Dispatch(ctx *Context, cause Cause, trapValue uint64) *Context {
	if installed == nil {
		return ctx
	}
	return installed(ctx, cause, trapValue)
}
