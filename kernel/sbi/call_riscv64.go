package sbi

// call marshals ext into a7, fn into a6, and args into a0-a5, issues ecall,
// and returns the firmware's reply pair (status in a0, value in a1).
// Implemented in call_riscv64.s.
func call(ext, fn uint64, args [6]uint64) (status int64, value uint64)
