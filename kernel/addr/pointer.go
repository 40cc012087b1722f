package addr

import "unsafe"

// PointerTo reinterprets v as a *T. The caller is responsible for the
// address actually being mapped and suitably aligned for T; this is the
// kernel's only escape hatch from the typed-address world into raw memory
// access and every call site should be able to point at the invariant that
// makes it safe.
func PointerTo[T any](v Virtual) *T {
	return (*T)(unsafe.Pointer(uintptr(v))) //nolint:govet
}

// FromPointer returns the Virtual address of p.
func FromPointer[T any](p *T) Virtual {
	return Virtual(uintptr(unsafe.Pointer(p)))
}
