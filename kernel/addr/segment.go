package addr

// kind is the constraint shared by Virtual and Physical: both are backed by
// uintptr and so support the arithmetic and comparison operators directly,
// which lets Segment be written once against either.
type kind interface {
	~uintptr
}

// Segment is a half-open range [Start, End) of addresses of the same kind.
// Callers are required to construct only valid segments; no operation here
// re-establishes Start <= End if it has been violated.
type Segment[T kind] struct {
	Start T
	End   T
}

// NewSegment builds a Segment spanning [start, start+size).
func NewSegment[T kind](start T, size uintptr) Segment[T] {
	return Segment[T]{Start: start, End: T(uintptr(start) + size)}
}

// Size returns the number of bytes covered by the segment.
func (s Segment[T]) Size() uintptr {
	return uintptr(s.End) - uintptr(s.Start)
}

// Contains reports whether a lies within [Start, End).
func (s Segment[T]) Contains(a T) bool {
	return uintptr(a) >= uintptr(s.Start) && uintptr(a) < uintptr(s.End)
}

// Encapsulates reports whether s fully contains other.
func (s Segment[T]) Encapsulates(other Segment[T]) bool {
	return uintptr(other.Start) >= uintptr(s.Start) && uintptr(other.End) <= uintptr(s.End)
}

// AlignedStart reports whether Start is a multiple of align.
func (s Segment[T]) AlignedStart(align uintptr) bool {
	return uintptr(s.Start)&(align-1) == 0
}

// AlignedEnd reports whether End is a multiple of align.
func (s Segment[T]) AlignedEnd(align uintptr) bool {
	return uintptr(s.End)&(align-1) == 0
}

// Shift returns s translated by off bytes in either direction.
func (s Segment[T]) Shift(off Offset) Segment[T] {
	return Segment[T]{
		Start: T(int64(s.Start) + int64(off)),
		End:   T(int64(s.End) + int64(off)),
	}
}

// Truncate returns s with its End pulled in so that its size is size. If
// size is larger than the current size, Truncate grows the segment instead.
func (s Segment[T]) Truncate(size uintptr) Segment[T] {
	return Segment[T]{Start: s.Start, End: T(uintptr(s.Start) + size)}
}

// AlignUp returns s with Start rounded up to the nearest multiple of align,
// End unchanged.
func (s Segment[T]) AlignUp(align uintptr) Segment[T] {
	return Segment[T]{
		Start: T((uintptr(s.Start) + align - 1) &^ (align - 1)),
		End:   s.End,
	}
}
