package vmm

import "rvos/kernel/addr"

// satp mode values, per the architecture's MMU-configuration word: mode 0
// leaves paging off (bare), mode 8 selects the three-level sv39 scheme.
const (
	ModeBare  = 0
	ModeSv39  = 8
	modeShift = 60
	asidShift = 44
	ppnMask   = (1 << 44) - 1
)

// ConfigWord packs the mode, address-space identifier, and root physical
// page number into the 64-bit value the MMU-configuration register expects.
// Mode ModeBare ignores asid and root and simply disables translation.
func ConfigWord(mode uint8, asid uint16, root addr.Physical) uint64 {
	if mode == ModeBare {
		return 0
	}
	ppn := uint64(root.Uintptr()) >> 12
	return uint64(mode)<<modeShift | uint64(asid)<<asidShift | (ppn & ppnMask)
}
