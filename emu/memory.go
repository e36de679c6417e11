// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/sys/cpu"
)

// hostBigEndian is detected once; the simulated machine is little endian.
var hostBigEndian = cpu.IsBigEndian

// ShortToHost converts a 16-bit value between simulated and host byte order.
func ShortToHost(v uint16) uint16 {
	if hostBigEndian {
		return bits.ReverseBytes16(v)
	}
	return v
}

// WordToHost converts a 32-bit value between simulated and host byte order.
func WordToHost(v uint32) uint32 {
	if hostBigEndian {
		return bits.ReverseBytes32(v)
	}
	return v
}

// LongToHost converts a 64-bit value between simulated and host byte order.
func LongToHost(v uint64) uint64 {
	if hostBigEndian {
		return bits.ReverseBytes64(v)
	}
	return v
}

// Memory is the physical main memory of the simulated machine: a zeroed,
// page-granular byte array.
type Memory struct {
	data     []byte
	pageSize int
}

// NewMemory allocates numPages pages of pageSize bytes.
func NewMemory(numPages, pageSize int) *Memory {
	return &Memory{
		data:     make([]byte, numPages*pageSize),
		pageSize: pageSize,
	}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// PageSize returns the page size in bytes.
func (m *Memory) PageSize() int {
	return m.pageSize
}

// NumPages returns the number of physical pages.
func (m *Memory) NumPages() int {
	return len(m.data) / m.pageSize
}

// Bytes returns the underlying storage. Kernel code uses it to move data
// between physical memory and devices.
func (m *Memory) Bytes() []byte {
	return m.data
}

// Read reads size bytes at physical address addr in simulated byte order.
func (m *Memory) Read(addr uint64, size int) uint64 {
	b := m.data[addr : addr+uint64(size)]
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(ShortToHost(binary.NativeEndian.Uint16(b)))
	case 4:
		return uint64(WordToHost(binary.NativeEndian.Uint32(b)))
	case 8:
		return LongToHost(binary.NativeEndian.Uint64(b))
	}
	panic(fmt.Sprintf("emu: invalid memory access size %d", size))
}

// Write writes the low size bytes of value at physical address addr.
func (m *Memory) Write(addr uint64, size int, value uint64) {
	b := m.data[addr : addr+uint64(size)]
	switch size {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.NativeEndian.PutUint16(b, ShortToHost(uint16(value)))
	case 4:
		binary.NativeEndian.PutUint32(b, WordToHost(uint32(value)))
	case 8:
		binary.NativeEndian.PutUint64(b, LongToHost(value))
	default:
		panic(fmt.Sprintf("emu: invalid memory access size %d", size))
	}
}

// Clear zeroes physical page ppn.
func (m *Memory) Clear(ppn uint64) {
	start := ppn * uint64(m.pageSize)
	clear(m.data[start : start+uint64(m.pageSize)])
}
