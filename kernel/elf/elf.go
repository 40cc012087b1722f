// Package elf parses a little-endian 64-bit RISC-V ELF image and maps its
// PT_LOAD segments into a fresh user address space. It understands just
// enough of the format to do that: no relocations, no dynamic linking, no
// section headers.
package elf

import (
	"encoding/binary"

	"rvos/kernel/addr"
	"rvos/kernel/errors"
	"rvos/kernel/mem"
	"rvos/kernel/mem/vmm"
)

const (
	magic0, magic1, magic2, magic3 = 0x7f, 'E', 'L', 'F'

	classELF64  = 2
	dataLSB     = 1
	machRISCV64 = 0xf3

	ehdrSize = 64
	phdrSize = 56

	ptLoad = 1

	pfExec  = 1
	pfWrite = 2
	pfRead  = 4
)

// header mirrors the fields of the ELF64 file header this loader reads.
// e_ident's class/data/machine bytes are validated but not kept.
type header struct {
	entry   uint64
	phoff   uint64
	phentsz uint16
	phnum   uint16
}

// programHeader mirrors the fields of one ELF64 program header entry.
type programHeader struct {
	typ    uint32
	flags  uint32
	offset uint64
	vaddr  uint64
	filesz uint64
	memsz  uint64
}

// parseHeader validates the ELF identification bytes and decodes the file
// header. It rejects anything that is not a little-endian 64-bit RISC-V
// executable.
func parseHeader(data []byte) (header, *errors.Error) {
	if len(data) < ehdrSize {
		return header{}, errors.New(errors.ExecutableFormat, "image shorter than an ELF header")
	}
	if data[0] != magic0 || data[1] != magic1 || data[2] != magic2 || data[3] != magic3 {
		return header{}, errors.New(errors.ExecutableFormat, "missing ELF magic")
	}
	if data[4] != classELF64 {
		return header{}, errors.New(errors.ExecutableFormat, "not a 64-bit ELF image")
	}
	if data[5] != dataLSB {
		return header{}, errors.New(errors.ExecutableFormat, "not a little-endian ELF image")
	}
	if mach := binary.LittleEndian.Uint16(data[18:20]); mach != machRISCV64 {
		return header{}, errors.New(errors.ExecutableFormat, "not a RISC-V ELF image")
	}

	return header{
		entry:   binary.LittleEndian.Uint64(data[24:32]),
		phoff:   binary.LittleEndian.Uint64(data[32:40]),
		phentsz: binary.LittleEndian.Uint16(data[54:56]),
		phnum:   binary.LittleEndian.Uint16(data[56:58]),
	}, nil
}

func parseProgramHeader(data []byte) programHeader {
	return programHeader{
		typ:    binary.LittleEndian.Uint32(data[0:4]),
		flags:  binary.LittleEndian.Uint32(data[4:8]),
		offset: binary.LittleEndian.Uint64(data[8:16]),
		vaddr:  binary.LittleEndian.Uint64(data[16:24]),
		filesz: binary.LittleEndian.Uint64(data[32:40]),
		memsz:  binary.LittleEndian.Uint64(data[40:48]),
	}
}

// permissionsFor maps a program header's R/W/X flag bits onto one of the
// four permission sets the page-table manager accepts, rejecting every
// other combination (write-only, exec-only, or no bits at all).
func permissionsFor(flags uint32) (vmm.Permissions, *errors.Error) {
	switch flags & (pfRead | pfWrite | pfExec) {
	case pfRead:
		return vmm.ReadOnly, nil
	case pfRead | pfExec:
		return vmm.ReadExecute, nil
	case pfRead | pfWrite:
		return vmm.ReadWrite, nil
	case pfRead | pfWrite | pfExec:
		return vmm.ReadWriteExecute, nil
	default:
		return 0, errors.New(errors.ExecutableFormat, "program header has an illegal permission combination")
	}
}

// Load maps every non-empty PT_LOAD segment of the ELF image in data into
// as, allocating fresh frames via allocFn, and returns the image's entry
// point. Each segment is copied in leaf-page-sized chunks: bytes past the
// segment's file size but within its memory size are zero-filled, so a
// segment's BSS tail never exposes file contents it does not own.
func Load(data []byte, as *vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) (addr.Virtual, *errors.Error) {
	hdr, err := parseHeader(data)
	if err != nil {
		return 0, err
	}
	if hdr.phentsz != phdrSize {
		return 0, errors.New(errors.ExecutableFormat, "unexpected program header entry size")
	}

	for i := uint16(0); i < hdr.phnum; i++ {
		off := hdr.phoff + uint64(i)*uint64(hdr.phentsz)
		if off+phdrSize > uint64(len(data)) {
			return 0, errors.New(errors.ExecutableFormat, "program header table runs past end of image")
		}
		ph := parseProgramHeader(data[off : off+phdrSize])
		if ph.typ != ptLoad || ph.memsz == 0 {
			continue
		}
		if err := loadSegment(data, ph, as, allocFn); err != nil {
			return 0, err
		}
	}

	return addr.Virtual(uintptr(hdr.entry)), nil
}

func loadSegment(data []byte, ph programHeader, as *vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) *errors.Error {
	perm, err := permissionsFor(ph.flags)
	if err != nil {
		return err
	}
	if ph.offset+ph.filesz > uint64(len(data)) {
		return errors.New(errors.ExecutableFormat, "segment file range runs past end of image")
	}

	page := uintptr(mem.PageSize)
	segStart := addr.Virtual(uintptr(ph.vaddr)).AlignDown(page)
	segEnd := addr.Virtual(uintptr(ph.vaddr) + uintptr(ph.memsz)).AlignUp(page)

	fileStart := int64(ph.offset) - int64(uintptr(ph.vaddr)-uintptr(segStart))

	for v := segStart; v < segEnd; v = v.Add(addr.Offset(page)) {
		frame, ferr := allocFn()
		if ferr != nil {
			return errors.Wrap(errors.OutOfPhysicalFrames, "allocate frame for loadable segment", ferr)
		}

		dst := addr.PointerTo[[mem.PageSize]byte](vmm.ToVirtual(frame))
		for i := range dst {
			dst[i] = 0
		}

		pageFileOff := fileStart + int64(v.Sub(segStart))
		copySegmentBytes(dst[:], data, pageFileOff, int64(ph.offset+ph.filesz))

		if merr := as.Map(v, frame, vmm.LevelPage, perm, vmm.Local, vmm.UserPrivilege, allocFn); merr != nil {
			return errors.Wrap(errors.InvalidMapping, "map loadable segment page", merr)
		}
	}

	return nil
}

// copySegmentBytes copies into dst whatever part of data[fileOff:fileEnd)
// overlaps a single page starting at file offset fileOff. fileOff may be
// negative (the page starts before the segment's first file byte, when
// vaddr is not page-aligned) or past fileEnd (a pure-BSS page); both leave
// dst untouched beyond what the caller already zeroed.
func copySegmentBytes(dst []byte, data []byte, fileOff, fileEnd int64) {
	for i := range dst {
		off := fileOff + int64(i)
		if off < 0 || off >= fileEnd || off >= int64(len(data)) {
			continue
		}
		dst[i] = data[off]
	}
}
