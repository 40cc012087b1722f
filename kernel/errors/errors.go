// Package errors implements the kernel's nestable error taxonomy. Kernel
// code cannot rely on the standard errors/fmt wrapping machinery before the
// heap is available, so every Error is allocated once, at the point of
// construction, and chained explicitly via Cause.
package errors

import "runtime"

// Kind classifies a kernel error. The zero Kind is never used by the kernel
// itself so a missing New("", ...) call is easy to spot.
type Kind uint8

// The error kinds named by the kernel's error taxonomy.
const (
	_ Kind = iota
	ProcessCreate
	ThreadCreate
	NoSuchThread
	ExecutableFormat
	OutOfVirtualAddresses
	OutOfPhysicalFrames
	HeapOutOfSpace
	HeapInvalidFree
	StackAllocation
	PageTableAllocation
	InvalidMapping
	PageTableCorruption
	FirmwareCall
)

var kindNames = [...]string{
	"",
	"process-create",
	"thread-create",
	"no-such-thread",
	"executable-format",
	"out-of-virtual-addresses",
	"out-of-physical-frames",
	"heap-out-of-space",
	"heap-invalid-free",
	"stack-allocation",
	"page-table-allocation",
	"invalid-mapping",
	"page-table-corruption",
	"firmware-call",
}

// String returns the taxonomy name for k.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a kernel error. It carries the source location of the call that
// created it and, optionally, the error it was raised in response to,
// forming a chain equivalent to a synchronous stack trace.
type Error struct {
	Kind    Kind
	Message string
	File    string
	Line    int
	Cause   *Error
}

// Error implements the error interface. It prints the full cause chain,
// innermost cause last.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := e.Kind.String() + ": " + e.Message
	if e.Cause != nil {
		msg += "\n\tcaused by " + e.Cause.Error()
	}
	return msg
}

// Unwrap allows errors.Is/errors.As from the standard library to traverse
// the cause chain.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// New creates an Error of the given kind, capturing the caller's source
// location.
func New(kind Kind, message string) *Error {
	return newAt(1, kind, message, nil)
}

// Wrap creates an Error of the given kind that chains to cause, capturing
// the caller's source location. Wrap(kind, msg, nil) behaves like New.
func Wrap(kind Kind, message string, cause *Error) *Error {
	return newAt(1, kind, message, cause)
}

func newAt(skip int, kind Kind, message string, cause *Error) *Error {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		file, line = "???", 0
	}
	return &Error{
		Kind:    kind,
		Message: message,
		File:    file,
		Line:    line,
		Cause:   cause,
	}
}

// Is reports whether any error in e's cause chain has the given Kind.
func (e *Error) Is(kind Kind) bool {
	for cur := e; cur != nil; cur = cur.Cause {
		if cur.Kind == kind {
			return true
		}
	}
	return false
}
