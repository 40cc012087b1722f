// Package addr defines the kernel's address newtypes and the half-open
// Segment range built on top of them. Virtual and Physical share the same
// arithmetic but the type system keeps them distinct: a physical address can
// never be assigned where a virtual one is expected, and vice versa.
package addr

// Offset is a signed number of bytes used to shift an address or to express
// the distance between two addresses of the same kind.
type Offset int64

// Virtual is an address in the 39-bit sv39 virtual address space.
type Virtual uintptr

// Physical is an address of physical memory.
type Physical uintptr

// Null is the zero address, shared by both address kinds since the zero
// value of Virtual/Physical is never a legal mapped byte in this kernel.
const Null = 0

// IsNull reports whether v is the null address.
func (v Virtual) IsNull() bool { return v == Null }

// IsNull reports whether p is the null address.
func (p Physical) IsNull() bool { return p == Null }

// Uintptr returns the raw machine word for v.
func (v Virtual) Uintptr() uintptr { return uintptr(v) }

// Uintptr returns the raw machine word for p.
func (p Physical) Uintptr() uintptr { return uintptr(p) }

// Add returns v shifted by off bytes.
func (v Virtual) Add(off Offset) Virtual { return Virtual(int64(v) + int64(off)) }

// Add returns p shifted by off bytes.
func (p Physical) Add(off Offset) Physical { return Physical(int64(p) + int64(off)) }

// Sub returns the byte distance from other to v, i.e. v - other.
func (v Virtual) Sub(other Virtual) Offset { return Offset(int64(v) - int64(other)) }

// Sub returns the byte distance from other to p, i.e. p - other.
func (p Physical) Sub(other Physical) Offset { return Offset(int64(p) - int64(other)) }

// Aligned reports whether v is a multiple of align, which must be a power of two.
func (v Virtual) Aligned(align uintptr) bool { return uintptr(v)&(align-1) == 0 }

// Aligned reports whether p is a multiple of align, which must be a power of two.
func (p Physical) Aligned(align uintptr) bool { return uintptr(p)&(align-1) == 0 }

// AlignDown rounds v down to the nearest multiple of align, a power of two.
func (v Virtual) AlignDown(align uintptr) Virtual {
	return Virtual(uintptr(v) &^ (align - 1))
}

// AlignDown rounds p down to the nearest multiple of align, a power of two.
func (p Physical) AlignDown(align uintptr) Physical {
	return Physical(uintptr(p) &^ (align - 1))
}

// AlignUp rounds v up to the nearest multiple of align, a power of two.
func (v Virtual) AlignUp(align uintptr) Virtual {
	return Virtual((uintptr(v) + align - 1) &^ (align - 1))
}

// AlignUp rounds p up to the nearest multiple of align, a power of two.
func (p Physical) AlignUp(align uintptr) Physical {
	return Physical((uintptr(p) + align - 1) &^ (align - 1))
}
