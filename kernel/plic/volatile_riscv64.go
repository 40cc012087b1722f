package plic

import "rvos/kernel/addr"

// load32 and store32 perform a single 32-bit volatile memory access at a.
// Implemented in volatile_riscv64.s so neither the compiler nor a CPU
// reorder buffer can fold, cache, or elide the access: every call here is a
// read or write of a live hardware register, not ordinary memory.
func load32(a addr.Virtual) uint32
func store32(a addr.Virtual, value uint32)
