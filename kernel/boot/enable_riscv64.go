package boot

// EnablePaging writes satp and issues the fence and deliberate illegal
// instruction that, together with InstallBounceVector, transfers control
// into the kernel's high-half entry point. It does not return: the illegal
// instruction always traps, and the bounce vector installed beforehand never
// returns to the instruction after it. Implemented in enable_riscv64.s.
func EnablePaging(satp uint64)
