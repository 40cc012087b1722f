// Package sbi wraps the firmware-call ABI the M-mode supporting environment
// exposes to supervisor mode: a single ecall primitive plus typed wrappers
// for the timer, reset, hart-state-management, and console extensions this
// kernel actually uses.
package sbi

// Extension and function identifiers, as assigned by the firmware-call
// specification this kernel targets.
const (
	timerExt   = 0x54494D45
	setTimerFn = 0

	resetExt     = 0x53525354
	resetFn      = 0
	resetTypeShutdown = 0

	hsmExt     = 0x48534D
	hartStopFn = 1

	consoleExt      = 0x01
	consolePutcharFn = 0
)

// ResetReason is passed to Shutdown to record why the platform is going
// down.
type ResetReason uint64

const (
	ResetNone ResetReason = iota
	ResetFailure
)

// callFn issues the raw ecall and is overridden in tests; in the kernel
// build it is always the assembly primitive declared in call_riscv64.go.
var callFn = call

// SetCallFn overrides the firmware-call primitive, for packages outside sbi
// that need to drive code paths calling into SetTimer, Shutdown, etc.
// without a real firmware environment. Returns the previous value so the
// caller can restore it.
func SetCallFn(fn func(ext, fn uint64, args [6]uint64) (int64, uint64)) (previous func(ext, fn uint64, args [6]uint64) (int64, uint64)) {
	previous, callFn = callFn, fn
	return previous
}

// doCall invokes callFn and panics if the firmware reports a negative
// status, per the firmware-call interface's error-handling contract: a
// negative status is always a fatal, unrecoverable condition for this
// kernel's narrow set of calls.
func doCall(ext, fn uint64, args [6]uint64) uint64 {
	status, value := callFn(ext, fn, args)
	if status < 0 {
		panic("sbi: firmware call failed")
	}
	return value
}

// SetTimer arms the supervisor timer to fire after delay timer cycles.
func SetTimer(delay uint64) {
	doCall(timerExt, setTimerFn, [6]uint64{delay})
}

// Shutdown powers off the platform and does not return.
func Shutdown(reason ResetReason) {
	doCall(resetExt, resetFn, [6]uint64{resetTypeShutdown, uint64(reason)})
	panic("sbi: shutdown call returned")
}

// ConsolePutByte writes a single byte to the firmware console.
func ConsolePutByte(b byte) {
	doCall(consoleExt, consolePutcharFn, [6]uint64{uint64(b)})
}

// HartStop stops the calling hart and returns control to the firmware. It
// does not return.
func HartStop() {
	doCall(hsmExt, hartStopFn, [6]uint64{})
	panic("sbi: hart stop call returned")
}
