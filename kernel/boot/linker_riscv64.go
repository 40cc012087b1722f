package boot

// The linker script this kernel builds with defines one symbol per boundary
// listed below; each function here returns that symbol's own address, which
// is all the symbol carries (there is no data stored at it). Implemented in
// linker_riscv64.s.

// TextStart and TextEnd bound the kernel image's executable section.
func TextStart() uintptr
func TextEnd() uintptr

// RoDataStart and RoDataEnd bound the kernel image's read-only data section.
func RoDataStart() uintptr
func RoDataEnd() uintptr

// RwDataStart and RwDataEnd bound the kernel image's read-write data
// section.
func RwDataStart() uintptr
func RwDataEnd() uintptr

// BSSStart and BSSEnd bound the kernel image's zero-initialized data, which
// the assembly entry point zeroes before calling into Go.
func BSSStart() uintptr
func BSSEnd() uintptr

// TmpStackTop is the temporary boot stack the assembly entry point sets up
// before BSS is zeroed and before any Go code runs.
func TmpStackTop() uintptr

// FreeStart marks the first byte of physical memory past the kernel image;
// the frame allocator's arena begins here.
func FreeStart() uintptr
