// Package vmm implements the sv39 page-table manager and the virtual-address
// segment allocator that hands out ranges for the heap, kernel stacks, and
// other reserved regions. It is adapted from gopheros's x86 recursive-mapping
// design but does not need the recursive trick: a riscv64 kernel keeps a
// linear map of all of physical memory, so page-table frames are always
// directly dereferenceable through ToVirtual.
package vmm

import "rvos/kernel/addr"

// entry is a single sv39 page-table entry.
type entry uint64

const (
	flagValid    entry = 1 << 0
	flagRead     entry = 1 << 1
	flagWrite    entry = 1 << 2
	flagExec     entry = 1 << 3
	flagUser     entry = 1 << 4
	flagGlobal   entry = 1 << 5
	flagAccessed entry = 1 << 6
	flagDirty    entry = 1 << 7

	ppnShift = 10
)

// Permissions enumerates the legal read/write/execute combinations a leaf
// entry may carry. There is no representation for "none" here: an entry with
// no R/W/X bits set is a directory, not a leaf with no permissions, and
// directories are handled separately by the page-table walk.
type Permissions uint8

const (
	ReadOnly Permissions = iota
	ReadExecute
	ReadWrite
	ReadWriteExecute
)

func (p Permissions) bits() entry {
	switch p {
	case ReadExecute:
		return flagRead | flagExec
	case ReadWrite:
		return flagRead | flagWrite
	case ReadWriteExecute:
		return flagRead | flagWrite | flagExec
	default:
		return flagRead
	}
}

func permissionsFromBits(e entry) Permissions {
	switch {
	case e&(flagRead|flagWrite|flagExec) == flagRead|flagWrite|flagExec:
		return ReadWriteExecute
	case e&(flagRead|flagWrite) == flagRead|flagWrite:
		return ReadWrite
	case e&(flagRead|flagExec) == flagRead|flagExec:
		return ReadExecute
	default:
		return ReadOnly
	}
}

// Scope distinguishes mappings visible across every address space (Global,
// tagged into the MMU so the TLB need not flush them on an ASID switch) from
// those local to a single address space.
type Scope uint8

const (
	Local Scope = iota
	Global
)

// Privilege distinguishes mappings a user thread may access from
// supervisor-only mappings.
type Privilege uint8

const (
	KernelPrivilege Privilege = iota
	UserPrivilege
)

func (e entry) valid() bool { return e&flagValid != 0 }

// leaf reports whether e translates a page at its level, as opposed to
// pointing at the next-level table.
func (e entry) leaf() bool { return e&(flagRead|flagWrite|flagExec) != 0 }

func (e entry) frame() addr.Physical {
	return addr.Physical(uintptr(e>>ppnShift) << 12)
}

func (e entry) permissions() Permissions { return permissionsFromBits(e) }

func (e entry) scope() Scope {
	if e&flagGlobal != 0 {
		return Global
	}
	return Local
}

func (e entry) privilege() Privilege {
	if e&flagUser != 0 {
		return UserPrivilege
	}
	return KernelPrivilege
}

func makeDirectory(frame addr.Physical, scope Scope) entry {
	e := flagValid | entry(frame.Uintptr()>>12)<<ppnShift
	if scope == Global {
		e |= flagGlobal
	}
	return e
}

func makeLeaf(frame addr.Physical, perm Permissions, scope Scope, priv Privilege) entry {
	e := flagValid | flagAccessed | flagDirty | perm.bits() | entry(frame.Uintptr()>>12)<<ppnShift
	if scope == Global {
		e |= flagGlobal
	}
	if priv == UserPrivilege {
		e |= flagUser
	}
	return e
}
