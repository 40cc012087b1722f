package exec

// Register indices into trap.Context.GPR, numbered the same way trap.Context
// itself is: index i holds architectural register x(i+1), since x0 is
// hardwired to zero and never saved.
const (
	spReg    = 1  // x2, stack pointer
	entryReg = 9  // x10, a0
	argReg   = 10 // x11, a1
)

// threadTrampoline is installed as a freshly spawned kernel thread's saved
// program counter. It is never called directly from Go; the first time the
// trap shim resumes this thread's context, execution lands here with the
// entry function's address in a0 and its argument in a1 (Spawn sets both).
// Implemented in trampoline_riscv64.s.
func threadTrampoline()

// trampolinePC returns threadTrampoline's address, for use as a new
// thread's Context.PC.
func trampolinePC() uintptr

// waitForInterrupt parks the hart in a low-power wait state until the next
// interrupt, which is how Handoff cedes the core after spawning the initial
// thread. Implemented in trampoline_riscv64.s.
func waitForInterrupt()

// threadExit is what threadTrampoline calls once entry(arg) returns; arg0
// on entry is entry's return value. It never returns, since there is
// nothing left on this thread's stack to return to.
func threadExit(status uintptr) {
	currentExecutor.Exit(status)
	for {
	}
}

// currentExecutor is the executor threadExit reports back to. Set once, by
// Kmain, before Handoff ever spawns a thread.
var currentExecutor *Executor

// SetCurrentExecutor installs e as the executor threadExit reports into.
func SetCurrentExecutor(e *Executor) { currentExecutor = e }
