package loader

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/emu"
)

// DefaultStackPages is the number of pages reserved for the user stack.
const DefaultStackPages = 8

// ErrNoMemory is returned when physical memory runs out while building an
// address space.
var ErrNoMemory = errors.New("loader: out of physical pages")

// FrameAllocator hands out physical pages.
type FrameAllocator struct {
	used []bool
	free int
}

// NewFrameAllocator manages numPages physical pages, all free.
func NewFrameAllocator(numPages int) *FrameAllocator {
	return &FrameAllocator{
		used: make([]bool, numPages),
		free: numPages,
	}
}

// Alloc returns the lowest free physical page.
func (a *FrameAllocator) Alloc() (uint64, error) {
	for ppn, used := range a.used {
		if !used {
			a.used[ppn] = true
			a.free--
			return uint64(ppn), nil
		}
	}
	return 0, ErrNoMemory
}

// Free returns ppn to the allocator.
func (a *FrameAllocator) Free(ppn uint64) {
	if ppn >= uint64(len(a.used)) || !a.used[ppn] {
		panic(fmt.Sprintf("loader: freeing unallocated page %d", ppn))
	}
	a.used[ppn] = false
	a.free++
}

// NumFree returns the number of free pages.
func (a *FrameAllocator) NumFree() int {
	return a.free
}

// AddrSpace is the memory image of one user program: its translation
// table and the physical pages backing it.
type AddrSpace struct {
	Table    *emu.TranslationTable
	Entry    uint64
	StackTop uint64

	pages []uint64
}

type addrSpaceBuilder struct {
	stackPages int
	logger     *logrus.Entry
}

// AddrSpaceOption is a functional option for NewAddrSpace.
type AddrSpaceOption func(*addrSpaceBuilder)

// WithStackPages sets the number of stack pages. Default:
// DefaultStackPages.
func WithStackPages(n int) AddrSpaceOption {
	return func(b *addrSpaceBuilder) {
		b.stackPages = n
	}
}

// WithLogger sets the logger used for address space traces.
func WithLogger(l *logrus.Entry) AddrSpaceOption {
	return func(b *addrSpaceBuilder) {
		b.logger = l
	}
}

// NewAddrSpace maps every segment of prog and a stack placed above the
// highest segment, taking physical pages from frames and copying the
// segment contents into mem. Pages are readable; they are writable when a
// segment covering them is.
func NewAddrSpace(
	prog *Program,
	mem *emu.Memory,
	frames *FrameAllocator,
	maxVirtPages int,
	opts ...AddrSpaceOption,
) (*AddrSpace, error) {
	b := &addrSpaceBuilder{stackPages: DefaultStackPages}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger := b.logger.WithField("component", "addrspace")

	pageSize := uint64(mem.PageSize())
	if err := prog.CheckLayout(pageSize, maxVirtPages); err != nil {
		return nil, err
	}
	codePages := divRoundUp(prog.End(), pageSize)
	numPages := codePages + uint64(b.stackPages)
	if numPages > uint64(maxVirtPages) {
		return nil, fmt.Errorf("program needs %d virtual pages, at most %d allowed",
			numPages, maxVirtPages)
	}

	as := &AddrSpace{
		Table:    emu.NewTranslationTable(maxVirtPages),
		Entry:    prog.EntryPoint,
		StackTop: numPages * pageSize,
	}

	mapPage := func(vpn uint64, writable bool) error {
		if e := as.Table.Entry(vpn); e != nil && e.Valid {
			e.WriteAllowed = e.WriteAllowed || writable
			return nil
		}
		ppn, err := frames.Alloc()
		if err != nil {
			return err
		}
		mem.Clear(ppn)
		as.Table.Map(vpn, ppn, true, writable)
		as.pages = append(as.pages, ppn)
		return nil
	}

	for _, seg := range prog.Segments {
		first, last, ok := seg.Pages(pageSize)
		if !ok {
			continue
		}
		writable := seg.Flags&SegmentFlagWrite != 0
		for vpn := first; vpn <= last; vpn++ {
			if err := mapPage(vpn, writable); err != nil {
				as.Release(frames)
				return nil, err
			}
		}
	}
	for vpn := codePages; vpn < numPages; vpn++ {
		if err := mapPage(vpn, true); err != nil {
			as.Release(frames)
			return nil, err
		}
	}

	buf := mem.Bytes()
	for _, seg := range prog.Segments {
		for i, v := range seg.Data {
			vaddr := seg.VirtAddr + uint64(i)
			e := as.Table.Entry(vaddr / pageSize)
			buf[e.PhysicalPage*pageSize+vaddr%pageSize] = v
		}
	}

	logger.WithFields(logrus.Fields{
		"pages": numPages,
		"entry": fmt.Sprintf("0x%x", as.Entry),
		"stack": fmt.Sprintf("0x%x", as.StackTop),
	}).Debug("address space built")
	if logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		logger.Trace(spew.Sdump(as.pages))
	}

	return as, nil
}

// Install makes as the current address space of m and points the CPU at
// the program entry with the stack pointer at the top of the stack.
func (as *AddrSpace) Install(m *emu.Machine) {
	m.MMU().SetTranslationTable(as.Table)
	regs := m.RegFile()
	regs.PC = as.Entry
	regs.WriteInt(2, int64(as.StackTop-16))
}

// Pages returns the physical pages owned by the address space.
func (as *AddrSpace) Pages() []uint64 {
	return as.pages
}

// Release returns every physical page to frames.
func (as *AddrSpace) Release(frames *FrameAllocator) {
	for _, ppn := range as.pages {
		frames.Free(ppn)
	}
	as.pages = nil
}

func divRoundUp(n, d uint64) uint64 {
	return (n + d - 1) / d
}
