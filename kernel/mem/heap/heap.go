// Package heap implements the kernel's general-purpose allocator: a
// boundary-tag, doubly linked, address-ordered free list with checksummed
// used blocks. Blocks are carved only from the arena handed to New, never
// from the Go runtime allocator; the Heap descriptor itself is an ordinary
// Go allocation, and Kmain builds the kernel heap after rvos/kernel/goruntime
// has brought that allocator up.
package heap

import (
	"unsafe"

	"rvos/kernel/addr"
)

// minBlockSize is the smallest usable payload, in bytes, a block may carry.
// A split that would leave a residual smaller than header+minBlockSize
// consumes the entire original block instead.
const minBlockSize = 16

type blockState uint8

const (
	stateFree blockState = iota
	stateUsed
)

// header precedes every block's payload. Every header has the same layout
// regardless of state; which of the two field groups below is meaningful is
// determined by state, not inferred from their contents. This departs from
// a tighter two-word union representation in favor of type safety: a
// heuristic "does this look like a pointer or a checksum" test would risk
// silently misclassifying a corrupted block, which is exactly what the
// checksum is supposed to catch.
type header struct {
	size  uintptr // total bytes of this block, header included
	state blockState

	// valid when state == stateFree
	prev *header
	next *header

	// valid when state == stateUsed
	checksum1 uintptr
	checksum2 uintptr
}

const headerSize = unsafe.Sizeof(header{})

// Stats reports the current utilization of a Heap.
type Stats struct {
	Total    uintptr
	Used     uintptr
	Free     uintptr
	Overhead uintptr
	Live     int
}

// Heap is a free-list allocator over a fixed, pre-reserved virtual address
// range.
type Heap struct {
	arena    addr.Segment[addr.Virtual]
	freeHead *header
	live     int
}

// arenaTooSmallError is the type of ErrArenaTooSmall.
type arenaTooSmallError struct{}

func (arenaTooSmallError) Error() string { return "heap: arena too small for one block" }

// ErrArenaTooSmall is returned by New when the supplied arena cannot hold a
// single header + minimum-sized block.
var ErrArenaTooSmall error = arenaTooSmallError{}

// New creates a Heap spanning the whole of arena as a single free block.
func New(arena addr.Segment[addr.Virtual]) (*Heap, error) {
	if arena.Size() < headerSize+minBlockSize {
		return nil, ErrArenaTooSmall
	}

	h := &Heap{arena: arena}
	root := headerAt(arena.Start)
	*root = header{size: arena.Size(), state: stateFree}
	h.freeHead = root
	return h, nil
}

func headerAt(v addr.Virtual) *header {
	return addr.PointerTo[header](v)
}

func headerAddr(h *header) addr.Virtual {
	return addr.FromPointer(h)
}

func payloadOf(h *header) addr.Virtual {
	return headerAddr(h).Add(addr.Offset(headerSize))
}

func headerFromPayload(p addr.Virtual) *header {
	return headerAt(p.Add(addr.Offset(-int64(headerSize))))
}

// checksum derives a value from a block's own address and size. A used
// block stores this value twice; a mismatch between the two stored copies,
// or between either copy and the recomputed value, indicates corruption.
func checksum(h *header) uintptr {
	x := uintptr(headerAddr(h))*2654435761 + h.size*40503 + 0x9e3779b97f4a7c15
	x ^= x >> 17
	x *= 0xff51afd7ed558ccd
	x ^= x >> 13
	return x
}

// Allocate returns a pointer to a block of at least size usable bytes,
// aligned to alignment, or false if no free block can satisfy the request.
func (h *Heap) Allocate(size, alignment uintptr) (addr.Virtual, bool) {
	need := size
	if need < minBlockSize {
		need = minBlockSize
	}
	needTotal := headerSize + need

	for cur := h.freeHead; cur != nil; cur = cur.next {
		if alignment > 8 && !payloadOf(cur).Aligned(alignment) {
			continue
		}
		if cur.size < needTotal {
			continue
		}

		remainder := cur.size - needTotal
		prev, next := cur.prev, cur.next

		var allocated *header
		if remainder < headerSize+minBlockSize {
			// Consume the entire block; nothing left to reinsert.
			h.unlink(cur, prev, next)
			allocated = cur
			allocated.size = cur.size
		} else {
			residualAddr := headerAddr(cur).Add(addr.Offset(needTotal))
			residual := headerAt(residualAddr)
			*residual = header{size: remainder, state: stateFree, prev: prev, next: next}
			h.replace(cur, residual, prev, next)
			allocated = cur
			allocated.size = needTotal
		}

		allocated.state = stateUsed
		c := checksum(allocated)
		allocated.checksum1, allocated.checksum2 = c, c
		h.live++
		return payloadOf(allocated), true
	}

	return addr.Virtual(addr.Null), false
}

// replace swaps cur for residual at the same position in the free list.
func (h *Heap) replace(cur, residual *header, prev, next *header) {
	if prev != nil {
		prev.next = residual
	} else {
		h.freeHead = residual
	}
	if next != nil {
		next.prev = residual
	}
}

// unlink removes cur from the free list.
func (h *Heap) unlink(cur, prev, next *header) {
	if prev != nil {
		prev.next = next
	} else {
		h.freeHead = next
	}
	if next != nil {
		next.prev = prev
	}
}

// Free releases a block previously returned by Allocate. It panics if the
// block's checksums disagree with each other or with the recomputed value,
// which indicates heap corruption (double free, out-of-bounds free, or a
// pointer that never came from this heap).
func (h *Heap) Free(p addr.Virtual) {
	hd := headerFromPayload(p)
	if hd.state != stateUsed {
		panic("heap: free of a block that is not in use")
	}
	want := checksum(hd)
	if hd.checksum1 != want || hd.checksum2 != want || hd.checksum1 != hd.checksum2 {
		panic("heap: corruption detected (checksum mismatch)")
	}

	hd.state = stateFree
	h.live--

	// Find the address-ordered insertion point.
	var prev, next *header
	for cur := h.freeHead; cur != nil; cur = cur.next {
		if headerAddr(cur) > headerAddr(hd) {
			next = cur
			break
		}
		prev = cur
	}
	hd.prev, hd.next = prev, next
	if prev != nil {
		prev.next = hd
	} else {
		h.freeHead = hd
	}
	if next != nil {
		next.prev = hd
	}

	// Coalesce forward while the next free block is adjacent.
	for hd.next != nil && headerAddr(hd).Add(addr.Offset(hd.size)) == headerAddr(hd.next) {
		absorbed := hd.next
		hd.size += absorbed.size
		h.unlink(absorbed, hd, absorbed.next)
	}

	// Coalesce backward while the previous free block is adjacent. The
	// absorbing block ends where hd ended, so no new forward adjacency can
	// arise and the forward loop above need not run again.
	for hd.prev != nil && headerAddr(hd.prev).Add(addr.Offset(hd.prev.size)) == headerAddr(hd) {
		target := hd.prev
		target.size += hd.size
		h.unlink(hd, target, hd.next)
		hd = target
	}
}

// Stats reports the current utilization of the heap.
func (h *Heap) Stats() Stats {
	var s Stats
	s.Total = h.arena.Size()
	s.Live = h.live

	for cur := h.freeHead; cur != nil; cur = cur.next {
		s.Free += cur.size - headerSize
		s.Overhead += headerSize
	}
	s.Used = s.Total - s.Free - s.Overhead
	// Used-block headers are overhead too; pull them out of Used.
	s.Used -= uintptr(h.usedHeaderBytes())
	s.Overhead += uintptr(h.usedHeaderBytes())
	return s
}

func (h *Heap) usedHeaderBytes() uintptr {
	return uintptr(h.live) * headerSize
}

// IntegrityCheck walks the free list and verifies its structural
// invariants: the head has no previous pointer, every block lies within the
// arena, adjacent free blocks are never closer than header+minBlockSize
// apart (else they should have been coalesced), and prev/next pointers are
// mutually consistent.
func (h *Heap) IntegrityCheck() bool {
	if h.freeHead != nil && h.freeHead.prev != nil {
		return false
	}

	var prev *header
	for cur := h.freeHead; cur != nil; cur = cur.next {
		if cur.prev != prev {
			return false
		}
		if headerAddr(cur) < h.arena.Start || headerAddr(cur).Add(addr.Offset(cur.size)) > h.arena.End {
			return false
		}
		if prev != nil {
			gap := headerAddr(cur).Sub(headerAddr(prev).Add(addr.Offset(prev.size)))
			if gap < addr.Offset(headerSize+minBlockSize) {
				return false
			}
		}
		prev = cur
	}
	return true
}
