package kfmt

import "rvos/kernel/errors"

// haltFn is called once Panic has finished printing. The kernel build points
// it at sbi.HartStop; tests substitute a function that just records that it
// was called.
var haltFn = func() {
	for {
	}
}

// SetHaltFn overrides the function Panic calls after printing a fatal
// error. Kmain calls this once, early in boot, to point it at sbi.HartStop.
func SetHaltFn(fn func()) { haltFn = fn }

// Panic prints the supplied error, if any, to the console and halts the
// hart. Panic never returns. e may be a *errors.Error, any other error, a
// plain string, or nil.
func Panic(e interface{}) {
	label, msg, have := "", "", false

	switch t := e.(type) {
	case *errors.Error:
		label, msg, have = t.Kind.String(), t.Message, true
	case string:
		label, msg, have = "rt", t, true
	case error:
		label, msg, have = "rt", t.Error(), true
	}

	Printf("\n-----------------------------------\n")
	if have {
		Printf("[%s] unrecoverable error: %s\n", label, msg)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------")

	haltFn()
}
