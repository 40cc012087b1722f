// Package pmm implements the physical-frame allocator: a bump allocator
// backed by a fixed arena that hands off to a free list once frames start
// being freed.
package pmm

import "rvos/kernel/mem"

// FrameSize is the size, in bytes, of every frame this allocator hands out.
// It is always the sv39 leaf page size; larger mappings are built by the
// page-table manager out of multiple contiguous frames, not by a bigger
// frame unit here.
const FrameSize = mem.PageSize
