// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import (
	"github.com/sirupsen/logrus"
)

// TranslationEntry describes the mapping of one virtual page.
type TranslationEntry struct {
	PhysicalPage uint64
	Valid        bool
	ReadAllowed  bool
	WriteAllowed bool

	// Used and Modified are set by the MMU on every successful access.
	Used     bool
	Modified bool
}

// TranslationTable is a linear page table indexed by virtual page number.
// The kernel owns it and installs it in the MMU on context switch.
type TranslationTable struct {
	entries []TranslationEntry
}

// NewTranslationTable creates a table covering maxVirtPages pages, all
// initially invalid.
func NewTranslationTable(maxVirtPages int) *TranslationTable {
	return &TranslationTable{entries: make([]TranslationEntry, maxVirtPages)}
}

// Size returns the number of virtual pages covered by the table.
func (t *TranslationTable) Size() int {
	return len(t.entries)
}

// Entry returns the entry of virtual page vpn, or nil when vpn is out of
// range.
func (t *TranslationTable) Entry(vpn uint64) *TranslationEntry {
	if vpn >= uint64(len(t.entries)) {
		return nil
	}
	return &t.entries[vpn]
}

// Map makes vpn a valid page backed by physical page ppn.
func (t *TranslationTable) Map(vpn, ppn uint64, readable, writable bool) {
	e := t.Entry(vpn)
	if e == nil {
		panic("emu: mapping outside translation table")
	}
	*e = TranslationEntry{
		PhysicalPage: ppn,
		Valid:        true,
		ReadAllowed:  readable,
		WriteAllowed: writable,
	}
}

// Unmap invalidates vpn.
func (t *TranslationTable) Unmap(vpn uint64) {
	if e := t.Entry(vpn); e != nil {
		*e = TranslationEntry{}
	}
}

// AccessObserver is notified of every successful physical memory access.
type AccessObserver interface {
	ObserveAccess(phys uint64, size int, write bool)
}

// MMU translates virtual addresses through the installed translation table
// and moves data between the CPU and physical memory. A failed translation
// raises the matching exception on the machine before returning.
type MMU struct {
	machine  *Machine
	memory   *Memory
	table    *TranslationTable
	pageSize uint64
	numPages uint64

	instObserver AccessObserver
	dataObserver AccessObserver

	logger *logrus.Entry
}

func newMMU(m *Machine, memory *Memory, logger *logrus.Entry) *MMU {
	return &MMU{
		machine:  m,
		memory:   memory,
		pageSize: uint64(memory.PageSize()),
		numPages: uint64(memory.NumPages()),
		logger:   logger,
	}
}

// SetTranslationTable installs t. A nil table makes every access fail
// with an address error.
func (u *MMU) SetTranslationTable(t *TranslationTable) {
	u.table = t
}

// TranslationTable returns the installed table.
func (u *MMU) TranslationTable() *TranslationTable {
	return u.table
}

// SetInstructionObserver registers o for instruction fetches.
func (u *MMU) SetInstructionObserver(o AccessObserver) {
	u.instObserver = o
}

// SetDataObserver registers o for loads and stores.
func (u *MMU) SetDataObserver(o AccessObserver) {
	u.dataObserver = o
}

// Translate maps vaddr to a physical address for an access of size bytes.
// It updates the Used and Modified bits on success and never raises.
func (u *MMU) Translate(vaddr uint64, size int, writing bool) (uint64, ExceptionType) {
	switch size {
	case 1, 2, 4, 8:
	default:
		return 0, AddressErrorException
	}
	if vaddr%uint64(size) != 0 {
		return 0, AddressErrorException
	}

	vpn := vaddr / u.pageSize
	offset := vaddr % u.pageSize

	if u.table == nil || vpn >= uint64(u.table.Size()) {
		return 0, AddressErrorException
	}

	entry := &u.table.entries[vpn]
	switch {
	case !entry.Valid:
		return 0, PageFaultException
	case writing && !entry.WriteAllowed:
		return 0, ReadOnlyException
	case !writing && !entry.ReadAllowed:
		return 0, BusErrorException
	case entry.PhysicalPage >= u.numPages:
		return 0, BusErrorException
	}

	entry.Used = true
	if writing {
		entry.Modified = true
	}

	return entry.PhysicalPage*u.pageSize + offset, NoException
}

// ReadMem reads size bytes at virtual address vaddr. It returns false when
// an exception was raised instead.
func (u *MMU) ReadMem(vaddr uint64, size int) (uint64, bool) {
	return u.read(vaddr, size, u.dataObserver)
}

// Fetch reads the instruction word at vaddr.
func (u *MMU) Fetch(vaddr uint64) (uint32, bool) {
	v, ok := u.read(vaddr, 4, u.instObserver)
	return uint32(v), ok
}

func (u *MMU) read(vaddr uint64, size int, o AccessObserver) (uint64, bool) {
	phys, exc := u.Translate(vaddr, size, false)
	if exc != NoException {
		u.fault(exc, vaddr, size, false)
		return 0, false
	}

	if o != nil {
		o.ObserveAccess(phys, size, false)
	}
	return u.memory.Read(phys, size), true
}

// WriteMem writes the low size bytes of value at virtual address vaddr. It
// returns false when an exception was raised instead.
func (u *MMU) WriteMem(vaddr uint64, size int, value uint64) bool {
	phys, exc := u.Translate(vaddr, size, true)
	if exc != NoException {
		u.fault(exc, vaddr, size, true)
		return false
	}

	if u.dataObserver != nil {
		u.dataObserver.ObserveAccess(phys, size, true)
	}
	u.memory.Write(phys, size, value)
	return true
}

func (u *MMU) fault(exc ExceptionType, vaddr uint64, size int, writing bool) {
	u.logger.WithFields(logrus.Fields{
		"vaddr": vaddr,
		"size":  size,
		"write": writing,
	}).Debugf("translation failed: %s", exc)

	u.machine.RaiseException(exc, vaddr)
}
