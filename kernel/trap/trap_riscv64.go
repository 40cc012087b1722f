package trap

// vectorEntry is the 4-byte-aligned leaf trap vector hardware jumps to
// directly on any trap. It swaps sp for the per-hart scratch stack pointer
// stashed in sscratch, reserves room for a Context, spills the general
// purpose registers and sepc into it, calls Dispatch with that pointer plus
// scause and stval, then restores whatever Context Dispatch returned and
// executes sret. Implemented in trap_riscv64.s; never called from Go.
func vectorEntry()

// InstallVector writes handlerAddr into stvec, in direct mode, so the next
// trap on this hart enters through vectorEntry at that address.
func InstallVector(handlerAddr uintptr)

// SetScratchStack records the per-hart trap stack's top in sscratch, which
// vectorEntry swaps in for the interrupted stack pointer on entry.
func SetScratchStack(top uintptr)

// EnableInterrupts sets the supervisor interrupt-enable bit and reports its
// previous value; DisableInterrupts clears it and reports the previous
// value. A critical section pairs one call to each, restoring whatever the
// bit was on entry rather than unconditionally re-enabling it.
func EnableInterrupts() (previous bool)
func DisableInterrupts() (previous bool)

// EnableUserMemoryAccess sets the sstatus SUM bit, letting supervisor code
// dereference pages mapped with Privilege=User; DisableUserMemoryAccess
// clears it. The syscall layer's print implementation pairs one call to
// each around its copy from user memory, the same way a critical section
// pairs Enable/DisableInterrupts.
func EnableUserMemoryAccess() (previous bool)
func DisableUserMemoryAccess() (previous bool)

// WaitForInterrupt parks the hart in a low-power wait state until the next
// interrupt arrives. It never returns to its caller: the trap taken on that
// interrupt resumes whatever context the handler picks next, which is never
// the instruction after this call. A thread with nothing left to do calls
// this once, as its last action.
func WaitForInterrupt()
