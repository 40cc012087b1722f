// Command rvos is the kernel image's Go entry point. It exists only as a
// trampoline: the assembly boot stub (temporary stack, BSS zeroing, global
// pointer setup) tail-calls main after parking every hart but the boot hart,
// passing the boot hart ID and the firmware-supplied device tree pointer in
// a0/a1.
package main

import "rvos/kernel"

// hartID and deviceTreePtr are package vars, not main's local variables, so
// the compiler cannot prove Kmain's arguments are always zero and fold the
// call away: the assembly stub writes them before jumping here.
var (
	hartID        uint64
	deviceTreePtr uintptr
)

// main is the only Go symbol the boot stub calls. It never returns: Kmain
// bounces into the kernel's high-half address space and hands off to the
// scheduler.
func main() {
	kernel.Kmain(hartID, deviceTreePtr)
}
