// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import (
	"fmt"
	"math"
)

// NumIntRegs and NumFPRegs are the sizes of the two register banks.
const (
	NumIntRegs = 32
	NumFPRegs  = 32
)

// Mode is the privilege level the simulated processor is running at.
type Mode uint8

// Privilege levels.
const (
	SystemMode Mode = iota
	UserMode
)

func (m Mode) String() string {
	if m == UserMode {
		return "user"
	}
	return "system"
}

// nanBoxMask marks the upper half of a NaN-boxed single-precision value.
const nanBoxMask uint64 = 0xFFFFFFFF_00000000

// canonicalNaN32 and canonicalNaN64 are the RISC-V canonical quiet NaNs.
const (
	canonicalNaN32 uint32 = 0x7FC00000
	canonicalNaN64 uint64 = 0x7FF8000000000000
)

// RegFile represents the RISC-V register file.
// It contains 32 integer registers (x0-x31), 32 floating-point registers
// (f0-f31) stored as raw 64-bit patterns, the program counter (PC) and the
// current privilege mode.
type RegFile struct {
	// X holds integer registers. X[0] is hardwired to zero.
	X [NumIntRegs]int64

	// F holds floating-point registers as raw bits. Single-precision values
	// are NaN-boxed.
	F [NumFPRegs]uint64

	// PC is the program counter.
	PC uint64

	// Mode is the current privilege mode.
	Mode Mode
}

func checkIndex(i uint8, n int) {
	if int(i) >= n {
		panic(fmt.Sprintf("emu: register index %d out of range", i))
	}
}

// ReadInt reads integer register i. Register 0 always reads zero.
func (r *RegFile) ReadInt(i uint8) int64 {
	checkIndex(i, NumIntRegs)
	if i == 0 {
		return 0
	}
	return r.X[i]
}

// WriteInt writes integer register i. Writes to register 0 are ignored.
func (r *RegFile) WriteInt(i uint8, v int64) {
	checkIndex(i, NumIntRegs)
	if i == 0 {
		return
	}
	r.X[i] = v
}

// ReadFP reads the raw bits of floating-point register i.
func (r *RegFile) ReadFP(i uint8) uint64 {
	checkIndex(i, NumFPRegs)
	return r.F[i]
}

// WriteFP writes the raw bits of floating-point register i.
func (r *RegFile) WriteFP(i uint8, v uint64) {
	checkIndex(i, NumFPRegs)
	r.F[i] = v
}

// ReadFloat32Bits returns the single-precision bits held in register i.
// A value that is not properly NaN-boxed reads as the canonical NaN.
func (r *RegFile) ReadFloat32Bits(i uint8) uint32 {
	v := r.ReadFP(i)
	if v&nanBoxMask != nanBoxMask {
		return canonicalNaN32
	}
	return uint32(v)
}

// WriteFloat32Bits NaN-boxes and stores single-precision bits in register i.
func (r *RegFile) WriteFloat32Bits(i uint8, v uint32) {
	r.WriteFP(i, nanBoxMask|uint64(v))
}

// ReadFloat32 reads register i as a single-precision value.
func (r *RegFile) ReadFloat32(i uint8) float32 {
	return math.Float32frombits(r.ReadFloat32Bits(i))
}

// WriteFloat32 writes a single-precision value to register i.
func (r *RegFile) WriteFloat32(i uint8, v float32) {
	r.WriteFloat32Bits(i, math.Float32bits(v))
}

// ReadFloat64 reads register i as a double-precision value.
func (r *RegFile) ReadFloat64(i uint8) float64 {
	return math.Float64frombits(r.ReadFP(i))
}

// WriteFloat64 writes a double-precision value to register i.
func (r *RegFile) WriteFloat64(i uint8, v float64) {
	r.WriteFP(i, math.Float64bits(v))
}
