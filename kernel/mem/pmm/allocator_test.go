package pmm

import (
	"testing"

	"rvos/kernel/addr"
)

// backingArena allocates a host-memory buffer large enough to hold
// frameCount frames plus slack for alignment, and returns a Segment
// describing frameCount page-aligned frames inside it. In this test
// "physical" and "virtual" are the same host address space, so callers pass
// a zero offset to Init; only the arithmetic is under test.
func backingArena(t *testing.T, frameCount int) addr.Segment[addr.Physical] {
	t.Helper()
	buf := make([]byte, (frameCount+1)*int(FrameSize))
	base := addr.FromPointer(&buf[0])
	aligned := addr.Physical(base).AlignUp(uintptr(FrameSize))
	return addr.NewSegment[addr.Physical](aligned, uintptr(frameCount)*uintptr(FrameSize))
}

func TestBumpThenFree(t *testing.T) {
	const frameCount = 16
	arena := backingArena(t, frameCount)

	var a Allocator
	a.Init(arena, 0)

	var issued []addr.Physical
	for i := 0; i < frameCount; i++ {
		f, err := a.Allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if want := arena.Start.Add(addr.Offset(i * int(FrameSize))); f != want {
			t.Fatalf("frame %d: got %#x, want %#x", i, f, want)
		}
		issued = append(issued, f)
	}

	if _, err := a.Allocate(); err == nil {
		t.Fatalf("expected 17th allocation to fail")
	}

	a.Free(issued[7])
	a.Free(issued[3])

	got1, err := a.Allocate()
	if err != nil {
		t.Fatalf("allocate after free: %v", err)
	}
	if got1 != issued[3] {
		t.Fatalf("expected LIFO free-list to return frame 3 first, got %#x want %#x", got1, issued[3])
	}

	got2, err := a.Allocate()
	if err != nil {
		t.Fatalf("allocate after free: %v", err)
	}
	if got2 != issued[7] {
		t.Fatalf("expected LIFO free-list to return frame 7 second, got %#x want %#x", got2, issued[7])
	}
}

func TestAllocateNeverIssuesLiveFrameTwice(t *testing.T) {
	const frameCount = 8
	arena := backingArena(t, frameCount)

	var a Allocator
	a.Init(arena, 0)

	seen := make(map[addr.Physical]bool)
	for i := 0; i < frameCount; i++ {
		f, err := a.Allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if seen[f] {
			t.Fatalf("frame %#x issued twice", f)
		}
		seen[f] = true
	}
}

func TestRebasePreservesBreakIndex(t *testing.T) {
	const frameCount = 4
	arena := backingArena(t, frameCount)

	var a Allocator
	a.Init(arena, 0)

	if _, err := a.Allocate(); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	newArena := backingArena(t, frameCount)
	a.Rebase(newArena, 0)

	f, err := a.Allocate()
	if err != nil {
		t.Fatalf("allocate after rebase: %v", err)
	}
	if want := newArena.Start.Add(addr.Offset(1 * int(FrameSize))); f != want {
		t.Fatalf("expected rebase to preserve break index: got %#x want %#x", f, want)
	}
}
