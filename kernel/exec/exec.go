// Package exec implements thread and process lifecycle on top of the
// scheduler interface: spawning kernel threads, loading ELF images into
// fresh user processes, quantum accounting, and the resume decision the
// trap handler's high-level half consults on every timer and syscall trap.
package exec

import (
	"reflect"

	"rvos/kernel/addr"
	"rvos/kernel/elf"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
	"rvos/kernel/mem/vmm"
	"rvos/kernel/sbi"
	"rvos/kernel/sched"
	"rvos/kernel/stack"
	"rvos/kernel/sync"
	"rvos/kernel/trap"
)

// TID identifies a thread; PID identifies a process. Both are monotonically
// increasing counters the Executor owns and never reuses.
type TID uint64
type PID uint64

// State is a point in a thread's Ready -> Running -> {Ready, Blocked,
// Finished} state machine. Blocked -> Ready is the only transition back in;
// Finished is terminal.
type State uint8

const (
	Ready State = iota
	Running
	Blocked
	Finished
)

// Kind distinguishes a kernel thread, which runs an arbitrary Go entry
// function at kernel privilege, from a user thread, the main thread of a
// process loaded from an ELF image.
type Kind uint8

const (
	KernelThread Kind = iota
	UserThread
)

// Thread flattens what could be two separate variants into one struct: PID,
// Entry and Arg are meaningful only for the Kind they belong to (PID for
// UserThread, Entry/Arg for KernelThread) and are left at their zero value
// otherwise.
type Thread struct {
	Kind       Kind
	TID        TID
	PID        PID
	State      State
	Context    trap.Context
	Entry      func(arg uintptr) uintptr
	Arg        uintptr
	ExitStatus uintptr
	exited     bool
	Stack      *stack.Stack
}

// Process is a loaded user program: its address space and the TIDs of every
// thread running inside it. Destroyed once MainTID is reaped.
type Process struct {
	PID          PID
	AddressSpace *vmm.AddressSpace
	MainTID      TID
	TIDs         []TID
}

const (
	// defaultQuantumLimit is the number of timer ticks a thread may run
	// before Resume forces it off the core.
	defaultQuantumLimit = 4
	// defaultQuantumMicros is the wall-clock length of one tick.
	defaultQuantumMicros = 250_000

	kernelStackSize = 16 * uintptr(mem.Kb)
	userStackSize   = 64 * uintptr(mem.Kb)
	// userStackTop is a fixed virtual address within the lower (user) half
	// of every process's address space; since every user address space is
	// distinct, reusing the same virtual layout across processes is safe.
	userStackTop = addr.Virtual(1<<38 - uintptr(mem.PageSize))
)

// CyclesPerQuantum converts the default 250ms quantum into firmware-timer
// cycles at the given timer frequency. Computed once, at Executor
// construction, rather than on every tick.
func CyclesPerQuantum(freqHz uint64) uint64 {
	cyclesPerMicro := freqHz / 1_000_000
	return cyclesPerMicro * defaultQuantumMicros
}

// Executor owns every thread and process in the system plus the scheduler
// that orders them. It is installed once at boot as a single process-wide
// instance, and guarded throughout by a single spinlock, since every
// operation here runs with interrupts either already disabled (trap context)
// or explicitly disabled for the duration.
type Executor struct {
	mu sync.Spinlock

	kernelAS     *vmm.AddressSpace
	stackValloc  *vmm.Valloc
	frameAllocFn vmm.FrameAllocatorFn

	nextTID  TID
	nextPID  PID
	nextASID uint16

	threads   map[TID]*Thread
	processes map[PID]*Process
	quanta    map[TID]uint32

	quantumLimit  uint32
	quantumCycles uint64

	scheduler sched.Scheduler
}

// New builds an Executor. kernelAS is inherited by every new user process's
// address space; stackValloc is the reserved virtual region kernel and user
// stacks are carved from; freqHz is the firmware timer's tick frequency,
// used to derive the quantum length in cycles.
func New(kernelAS *vmm.AddressSpace, stackValloc *vmm.Valloc, frameAllocFn vmm.FrameAllocatorFn, scheduler sched.Scheduler, freqHz uint64) *Executor {
	return &Executor{
		kernelAS:     kernelAS,
		stackValloc:  stackValloc,
		frameAllocFn: frameAllocFn,
		nextTID:      1,
		nextPID:      vmm.KernelSpaceID + 1,
		nextASID:     vmm.KernelSpaceID + 1,
		threads:      make(map[TID]*Thread),
		processes:    make(map[PID]*Process),
		quanta:       make(map[TID]uint32),
		quantumLimit: defaultQuantumLimit,
		quantumCycles: CyclesPerQuantum(freqHz),
		scheduler:    scheduler,
	}
}

// Spawn creates a new kernel thread that will run entry(arg) on its own
// stack once scheduled, and registers it with the scheduler as runnable.
func (e *Executor) Spawn(entry func(arg uintptr) uintptr, arg uintptr) (TID, *errors.Error) {
	e.mu.Acquire()
	defer e.mu.Release()

	st, err := stack.NewKernel(kernelStackSize, e.stackValloc, e.kernelAS, e.frameAllocFn)
	if err != nil {
		return 0, errors.Wrap(errors.ThreadCreate, "allocate kernel stack", err)
	}

	tid := e.nextTID
	e.nextTID++

	t := &Thread{
		Kind:  KernelThread,
		TID:   tid,
		State: Ready,
		Entry: entry,
		Arg:   arg,
		Stack: st,
	}
	t.Context.PC = uint64(trampolinePC())
	t.Context.GPR[entryReg] = uint64(reflect.ValueOf(entry).Pointer())
	t.Context.GPR[argReg] = uint64(arg)
	t.Context.GPR[spReg] = uint64(st.Top.Uintptr())
	t.Context.MMUConfig = vmm.ConfigWord(vmm.ModeSv39, vmm.KernelSpaceID, e.kernelAS.Root)

	e.threads[tid] = t
	e.quanta[tid] = 0
	e.scheduler.Add(sched.Handle(tid), 0)

	return tid, nil
}

// Exec loads elfBytes into a fresh address space seeded with the kernel
// half, maps a user stack at the fixed user stack top, and registers the
// resulting process's main thread as runnable.
func (e *Executor) Exec(elfBytes []byte) (PID, TID, *errors.Error) {
	e.mu.Acquire()
	defer e.mu.Release()

	asid := e.nextASID
	e.nextASID++

	rootFrame, ferr := e.frameAllocFn()
	if ferr != nil {
		return 0, 0, errors.Wrap(errors.ProcessCreate, "allocate root page table frame", ferr)
	}
	as := vmm.New(asid, rootFrame)
	as.InheritKernelHalf(e.kernelAS)

	entryPoint, lerr := elf.Load(elfBytes, as, e.frameAllocFn)
	if lerr != nil {
		return 0, 0, errors.Wrap(errors.ProcessCreate, "load ELF image", lerr)
	}

	stackSeg := addr.NewSegment[addr.Virtual](userStackTop.Add(-addr.Offset(userStackSize)), userStackSize)
	st, serr := stack.NewUser(stackSeg, userStackSize, as, e.frameAllocFn)
	if serr != nil {
		return 0, 0, errors.Wrap(errors.ProcessCreate, "allocate user stack", serr)
	}

	pid := e.nextPID
	e.nextPID++
	tid := e.nextTID
	e.nextTID++

	t := &Thread{
		Kind:  UserThread,
		TID:   tid,
		PID:   pid,
		State: Ready,
		Stack: st,
	}
	t.Context.PC = uint64(entryPoint.Uintptr())
	t.Context.GPR[spReg] = uint64(st.Top.Uintptr())
	t.Context.Privilege = trap.PrivilegeUser
	t.Context.MMUConfig = vmm.ConfigWord(vmm.ModeSv39, asid, as.Root)

	e.threads[tid] = t
	e.quanta[tid] = 0
	e.processes[pid] = &Process{PID: pid, AddressSpace: as, MainTID: tid, TIDs: []TID{tid}}
	e.scheduler.Add(sched.Handle(tid), 0)

	return pid, tid, nil
}

// Yield marks the calling thread's quantum as fully spent and rearms the
// timer to fire immediately, so the very next trap hands the core to
// whichever thread the scheduler picks next.
func (e *Executor) Yield() {
	e.mu.Acquire()
	h, ok := e.scheduler.Current()
	e.mu.Release()

	if ok {
		e.mu.Acquire()
		e.quanta[TID(h)] = e.quantumLimit
		e.mu.Release()
	}
	sbi.SetTimer(0)
}

// Exit records status on the current thread, marks it Finished, and
// completes it with the scheduler so it is never selected again.
func (e *Executor) Exit(status uintptr) {
	e.mu.Acquire()
	defer e.mu.Release()

	h, ok := e.scheduler.Current()
	if !ok {
		return
	}
	t, ok := e.threads[TID(h)]
	if !ok {
		return
	}
	t.ExitStatus = status
	t.exited = true
	t.State = Finished
	e.scheduler.Complete(h)
}

// Join busy-waits, yielding every iteration, until tid's thread reaches
// Finished, then reaps it: the thread is removed from the thread and
// quantum maps, and if it was a process's main thread, the process itself
// is removed.
func (e *Executor) Join(tid TID) (uintptr, *errors.Error) {
	for {
		e.mu.Acquire()
		t, ok := e.threads[tid]
		if !ok {
			e.mu.Release()
			return 0, errors.New(errors.NoSuchThread, "join of an unknown thread")
		}
		if t.State == Finished {
			status := t.ExitStatus
			delete(e.threads, tid)
			delete(e.quanta, tid)
			if t.Kind == UserThread {
				if p, ok := e.processes[t.PID]; ok && p.MainTID == tid {
					delete(e.processes, t.PID)
				}
			}
			e.mu.Release()
			return status, nil
		}
		e.mu.Release()
		e.Yield()
	}
}

// Resume decides, on every timer and syscall trap, whether the current
// thread keeps running or the core switches to whichever thread the
// scheduler picks next. It is called from the trap handler's high-level half
// with the context the assembly shim just saved; its return value is the
// context the shim resumes into, which may belong to a different thread —
// that substitution is the context switch.
func (e *Executor) Resume(saved *trap.Context) *trap.Context {
	e.mu.Acquire()
	defer e.mu.Release()

	h, hasCurrent := e.scheduler.Current()
	if hasCurrent {
		cur := e.threads[TID(h)]
		if cur != nil && cur.State == Running {
			if e.quanta[TID(h)] < e.quantumLimit {
				return saved
			}
			cur.Context = *saved
			cur.State = Ready
			e.scheduler.Yield(h)
		}
	}

	next, ok := e.scheduler.Next()
	if !ok {
		return saved
	}
	nt := e.threads[TID(next)]
	if nt == nil {
		return saved
	}
	nt.State = Running
	return &nt.Context
}

// Tick increments the currently running thread's quantum counter. Called
// once per supervisor-timer trap, before Resume makes its decision.
func (e *Executor) Tick() {
	e.mu.Acquire()
	defer e.mu.Release()

	h, ok := e.scheduler.Current()
	if !ok {
		return
	}
	e.quanta[TID(h)]++
}

// QuantumExpired reports whether tid has exhausted its quantum. Exposed
// separately from Resume's internal check so the trap handler can decide
// whether to rearm the timer for a full quantum or an immediate fire.
func (e *Executor) QuantumExpired(tid TID) bool {
	e.mu.Acquire()
	defer e.mu.Release()
	return e.quanta[tid] >= e.quantumLimit
}

// QuantumCycles returns the configured quantum length in firmware-timer
// cycles, for the trap handler to pass to sbi.SetTimer when rearming.
func (e *Executor) QuantumCycles() uint64 { return e.quantumCycles }

// Handoff spawns the initial thread, enables timer interrupts, arms the
// timer to fire immediately, and parks the hart waiting for that first
// trap to preempt into the scheduler. It returns only if spawning the
// initial thread fails, with that error.
func (e *Executor) Handoff(entry func(arg uintptr) uintptr, arg uintptr) *errors.Error {
	if _, err := e.Spawn(entry, arg); err != nil {
		return err
	}
	trap.EnableInterrupts()
	sbi.SetTimer(0)
	waitForInterrupt()
	return nil
}
