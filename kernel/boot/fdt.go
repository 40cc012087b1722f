package boot

import (
	"encoding/binary"
	"unsafe"

	"rvos/kernel/addr"
	"rvos/kernel/errors"
)

// Flattened device tree structure-block tokens, as laid out by the
// Devicetree Specification and produced by every firmware this kernel
// boots under.
const (
	fdtBeginNode = 0x00000001
	fdtEndNode   = 0x00000002
	fdtProp      = 0x00000003
	fdtNop       = 0x00000004
	fdtEnd       = 0x00000009

	fdtMagic      = 0xd00dfeed
	fdtHeaderSize = 40
)

// fdtHeader mirrors the big-endian header every flattened device tree blob
// starts with.
type fdtHeader struct {
	magic         uint32
	totalSize     uint32
	offStruct     uint32
	offStrings    uint32
	offMemRsvmap  uint32
	version       uint32
	lastCompVer   uint32
	bootCPUIDPhys uint32
	sizeStrings   uint32
	sizeStruct    uint32
}

func parseHeader(blob []byte) (fdtHeader, *errors.Error) {
	if len(blob) < fdtHeaderSize {
		return fdtHeader{}, errors.New(errors.ExecutableFormat, "device tree blob shorter than its header")
	}
	h := fdtHeader{
		magic:         binary.BigEndian.Uint32(blob[0:4]),
		totalSize:     binary.BigEndian.Uint32(blob[4:8]),
		offStruct:     binary.BigEndian.Uint32(blob[8:12]),
		offStrings:    binary.BigEndian.Uint32(blob[12:16]),
		offMemRsvmap:  binary.BigEndian.Uint32(blob[16:20]),
		version:       binary.BigEndian.Uint32(blob[20:24]),
		lastCompVer:   binary.BigEndian.Uint32(blob[24:28]),
		bootCPUIDPhys: binary.BigEndian.Uint32(blob[28:32]),
		sizeStrings:   binary.BigEndian.Uint32(blob[32:36]),
		sizeStruct:    binary.BigEndian.Uint32(blob[36:40]),
	}
	if h.magic != fdtMagic {
		return fdtHeader{}, errors.New(errors.ExecutableFormat, "device tree blob has the wrong magic number")
	}
	if uint64(h.offStruct)+uint64(h.sizeStruct) > uint64(len(blob)) ||
		uint64(h.offStrings)+uint64(h.sizeStrings) > uint64(len(blob)) {
		return fdtHeader{}, errors.New(errors.ExecutableFormat, "device tree blob shorter than its header claims")
	}
	return h, nil
}

// cellReader walks the big-endian structure block one token at a time.
type cellReader struct {
	buf []byte
	pos uint32
}

func (r *cellReader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *cellReader) cstring() string {
	start := r.pos
	for r.buf[r.pos] != 0 {
		r.pos++
	}
	s := string(r.buf[start:r.pos])
	r.pos++ // the NUL
	r.align4()
	return s
}

func (r *cellReader) align4() {
	r.pos = (r.pos + 3) &^ 3
}

func (r *cellReader) done() bool {
	return r.pos >= uint32(len(r.buf))
}

// RAMFromDeviceTree walks the flattened device tree blob at dtbPtr looking
// for the first node whose name starts with "memory" and reads its "reg"
// property, assuming the root node declares #address-cells = 2 and
// #size-cells = 2 — the layout QEMU's virt machine and every other board
// this kernel has been run on uses. It returns the base and size the reg
// property's first pair of cells describes.
func RAMFromDeviceTree(dtbPtr uintptr) (addr.Segment[addr.Physical], *errors.Error) {
	header, err := parseHeader(unsafe.Slice((*byte)(unsafe.Pointer(dtbPtr)), fdtHeaderSize))
	if err != nil {
		return addr.Segment[addr.Physical]{}, err
	}
	blob := unsafe.Slice((*byte)(unsafe.Pointer(dtbPtr)), header.totalSize)
	return ramFromBlob(blob)
}

// ramFromBlob is RAMFromDeviceTree's pointer-free half: parsing and
// structure-block walking operate on an ordinary byte slice, so this is
// exercisable against a synthetic blob without any real device tree or
// override idiom.
func ramFromBlob(blob []byte) (addr.Segment[addr.Physical], *errors.Error) {
	h, err := parseHeader(blob)
	if err != nil {
		return addr.Segment[addr.Physical]{}, err
	}

	r := &cellReader{buf: blob[h.offStruct : h.offStruct+h.sizeStruct]}
	strings := blob[h.offStrings : h.offStrings+h.sizeStrings]

	depth := 0
	inMemoryNode := false
	for !r.done() {
		switch r.u32() {
		case fdtBeginNode:
			name := r.cstring()
			depth++
			inMemoryNode = depth == 1 && hasPrefix(name, "memory")
		case fdtEndNode:
			depth--
			inMemoryNode = false
		case fdtProp:
			length := r.u32()
			nameOff := r.u32()
			name := cstringAt(strings, nameOff)
			propStart := r.pos
			if inMemoryNode && name == "reg" {
				if length < 16 {
					return addr.Segment[addr.Physical]{}, errors.New(errors.ExecutableFormat, "memory node reg property shorter than one address/size pair")
				}
				base := binary.BigEndian.Uint64(r.buf[propStart : propStart+8])
				size := binary.BigEndian.Uint64(r.buf[propStart+8 : propStart+16])
				return addr.NewSegment[addr.Physical](addr.Physical(base), uintptr(size)), nil
			}
			r.pos = propStart + length
			r.align4()
		case fdtNop:
		case fdtEnd:
			r.pos = uint32(len(r.buf))
		default:
			return addr.Segment[addr.Physical]{}, errors.New(errors.ExecutableFormat, "unrecognized device tree structure-block token")
		}
	}
	return addr.Segment[addr.Physical]{}, errors.New(errors.ExecutableFormat, "device tree has no memory node with a reg property")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func cstringAt(strings []byte, off uint32) string {
	end := off
	for end < uint32(len(strings)) && strings[end] != 0 {
		end++
	}
	return string(strings[off:end])
}
