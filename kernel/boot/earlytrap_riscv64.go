package boot

// earlyVectorEntry is the trap vector installed for the window between the
// very first Go instruction and the point paging is enabled and the real
// trap.vectorEntry takes over. It never resumes anything: the only traps
// expected this early are fatal misconfigurations, so it reads scause,
// reports it, and halts. Implemented in earlytrap_riscv64.s.
func earlyVectorEntry()

// InstallEarlyVector points stvec at earlyVectorEntry.
func InstallEarlyVector()
