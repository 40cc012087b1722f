package boot

// bounceTarget is the high-half address the one-shot bounce vector jumps to.
// It is written by InstallBounceVector and read only by bounceVector itself.
var bounceTarget uintptr

// bounceVector is a leaf trap vector installed only for the instant paging
// is enabled: unlike trap.vectorEntry, it does not save any register state,
// because nothing running at this point in boot has any state worth
// preserving. It simply jumps to bounceTarget. Implemented in
// bounce_riscv64.s.
func bounceVector()

// InstallBounceVector points stvec at bounceVector and records
// highHalfEntry as the address it jumps to on the very next trap, which
// EnablePaging's deliberate illegal instruction raises immediately after
// satp is written.
func InstallBounceVector(highHalfEntry uintptr)
