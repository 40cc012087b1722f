package vmm

import (
	"rvos/kernel/addr"
	"rvos/kernel/errors"
)

// Valloc hands out non-overlapping, granule-aligned virtual ranges from a
// single reserved parent segment. It tracks only the issued ranges, kept
// sorted by address; everything between them is implicitly free, so no
// coalescing is ever needed on Free.
type Valloc struct {
	parent  addr.Segment[addr.Virtual]
	granule uintptr
	issued  []addr.Segment[addr.Virtual]
}

// NewValloc creates an allocator serving ranges out of parent, rounding
// every request up to granule bytes (normally mem.PageSize).
func NewValloc(parent addr.Segment[addr.Virtual], granule uintptr) *Valloc {
	return &Valloc{parent: parent, granule: granule}
}

func alignUp(n, granule uintptr) uintptr {
	return (n + granule - 1) &^ (granule - 1)
}

// Allocate returns a fresh segment of at least size bytes. It first tries to
// extend past the last issued segment, then falls back to scanning gaps
// between adjacent issued segments, and fails only if neither has room.
func (a *Valloc) Allocate(size uintptr) (addr.Segment[addr.Virtual], *errors.Error) {
	size = alignUp(size, a.granule)

	if len(a.issued) == 0 {
		if a.parent.Size() < size {
			return addr.Segment[addr.Virtual]{}, errors.New(errors.OutOfVirtualAddresses, "requested range exceeds the reserved region")
		}
		seg := addr.NewSegment[addr.Virtual](a.parent.Start, size)
		a.issued = append(a.issued, seg)
		return seg, nil
	}

	last := a.issued[len(a.issued)-1]
	if uintptr(a.parent.End)-uintptr(last.End) >= size {
		seg := addr.NewSegment[addr.Virtual](last.End, size)
		a.issued = append(a.issued, seg)
		return seg, nil
	}

	for i := 0; i+1 < len(a.issued); i++ {
		gapStart := a.issued[i].End
		gapEnd := a.issued[i+1].Start
		if uintptr(gapEnd)-uintptr(gapStart) >= size {
			seg := addr.NewSegment[addr.Virtual](gapStart, size)
			a.issued = append(a.issued, addr.Segment[addr.Virtual]{})
			copy(a.issued[i+2:], a.issued[i+1:])
			a.issued[i+1] = seg
			return seg, nil
		}
	}

	return addr.Segment[addr.Virtual]{}, errors.New(errors.OutOfVirtualAddresses, "no gap large enough in the reserved region")
}

// Free removes whichever issued segment contains start, if any.
func (a *Valloc) Free(start addr.Virtual) {
	for i, seg := range a.issued {
		if seg.Contains(start) {
			a.issued = append(a.issued[:i], a.issued[i+1:]...)
			return
		}
	}
}
