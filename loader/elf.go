// Package loader reads RISC-V user programs and lays them out in the
// simulated machine's memory.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrBadLayout is returned for segments that cannot be placed in a user
// address space.
var ErrBadLayout = errors.New("loader: bad segment layout")

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// End returns the first address past the segment.
func (s Segment) End() uint64 {
	return s.VirtAddr + s.MemSize
}

// Validate checks that the segment contents fit its memory size and that
// the segment does not wrap around the address space.
func (s Segment) Validate() error {
	if uint64(len(s.Data)) > s.MemSize {
		return fmt.Errorf("%w: segment at 0x%x is larger in the file than in memory",
			ErrBadLayout, s.VirtAddr)
	}
	if s.End() < s.VirtAddr {
		return fmt.Errorf("%w: segment at 0x%x of %d bytes wraps around",
			ErrBadLayout, s.VirtAddr, s.MemSize)
	}
	return nil
}

// Pages returns the first and last virtual page numbers the segment touches.
// An empty segment touches no page and ok is false.
func (s Segment) Pages(pageSize uint64) (first, last uint64, ok bool) {
	if s.MemSize == 0 {
		return 0, 0, false
	}
	return s.VirtAddr / pageSize, (s.End() - 1) / pageSize, true
}

// Program represents a loaded ELF program ready for execution.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
}

// End returns the first address past the highest segment.
func (p *Program) End() uint64 {
	var end uint64
	for _, seg := range p.Segments {
		end = max(end, seg.End())
	}
	return end
}

// CheckLayout validates every segment and checks that each one lies within
// the first maxVirtPages pages of pageSize bytes.
func (p *Program) CheckLayout(pageSize uint64, maxVirtPages int) error {
	for _, seg := range p.Segments {
		if err := seg.Validate(); err != nil {
			return err
		}
		_, last, ok := seg.Pages(pageSize)
		if ok && last >= uint64(maxVirtPages) {
			return fmt.Errorf("%w: segment at 0x%x reaches page %d, table holds %d",
				ErrBadLayout, seg.VirtAddr, last, maxVirtPages)
		}
	}
	return nil
}

func segmentFlags(f elf.ProgFlag) SegmentFlags {
	var flags SegmentFlags
	if f&elf.PF_X != 0 {
		flags |= SegmentFlagExecute
	}
	if f&elf.PF_W != 0 {
		flags |= SegmentFlagWrite
	}
	if f&elf.PF_R != 0 {
		flags |= SegmentFlagRead
	}
	return flags
}

// Load parses a RISC-V ELF64 binary and returns a Program struct ready for
// loading into the machine's memory.
func Load(path string) (*Program, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat ELF file: %w", err)
	}
	fileSize := uint64(info.Size())

	f, err := elf.NewFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("not a little-endian ELF file")
	}

	prog := &Program{
		EntryPoint: f.Entry,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		seg := Segment{
			VirtAddr: phdr.Vaddr,
			MemSize:  phdr.Memsz,
			Flags:    segmentFlags(phdr.Flags),
		}
		if phdr.Filesz > phdr.Memsz {
			return nil, fmt.Errorf("%w: segment at 0x%x is larger in the file than in memory",
				ErrBadLayout, phdr.Vaddr)
		}
		if err := seg.Validate(); err != nil {
			return nil, err
		}
		if phdr.Off > fileSize || phdr.Filesz > fileSize-phdr.Off {
			return nil, fmt.Errorf("%w: segment at 0x%x runs past the end of the file",
				ErrBadLayout, phdr.Vaddr)
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		seg.Data = data
		prog.Segments = append(prog.Segments, seg)
	}

	return prog, nil
}
