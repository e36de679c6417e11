// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import "github.com/Kyllano/TacOS/insts"

// loadWidth describes an integer load: its size and whether the loaded
// value is sign-extended.
type loadWidth struct {
	size   int
	signed bool
}

var loadWidths = map[uint8]loadWidth{
	insts.LoadLB:  {1, true},
	insts.LoadLH:  {2, true},
	insts.LoadLW:  {4, true},
	insts.LoadLD:  {8, true},
	insts.LoadLBU: {1, false},
	insts.LoadLHU: {2, false},
	insts.LoadLWU: {4, false},
}

var storeSizes = map[uint8]int{
	insts.StoreSB: 1,
	insts.StoreSH: 2,
	insts.StoreSW: 4,
	insts.StoreSD: 8,
}

// extend sign- or zero-extends the low size bytes of v.
func extend(v uint64, size int, signed bool) int64 {
	if !signed || size == 8 {
		return int64(v)
	}
	shift := uint(64 - 8*size)
	return int64(v<<shift) >> shift
}

// executeLoad performs rd = mem[rs1 + imm]. A translation failure aborts
// the instruction without touching rd.
func (m *Machine) executeLoad(inst insts.Instruction) outcome {
	w, ok := loadWidths[inst.Funct3]
	if !ok {
		return m.unknown(inst)
	}

	addr := uint64(m.regs.ReadInt(inst.Rs1) + inst.ImmISigned)
	v, ok := m.mmu.ReadMem(addr, w.size)
	if !ok {
		return aborted
	}

	m.regs.WriteInt(inst.Rd, extend(v, w.size, w.signed))
	return committed
}

// executeStore performs mem[rs1 + imm] = rs2.
func (m *Machine) executeStore(inst insts.Instruction) outcome {
	size, ok := storeSizes[inst.Funct3]
	if !ok {
		return m.unknown(inst)
	}

	addr := uint64(m.regs.ReadInt(inst.Rs1) + inst.ImmSSigned)
	if !m.mmu.WriteMem(addr, size, uint64(m.regs.ReadInt(inst.Rs2))) {
		return aborted
	}
	return committed
}

// executeLoadFP performs FLW and FLD. Single-precision loads are NaN-boxed.
func (m *Machine) executeLoadFP(inst insts.Instruction) outcome {
	addr := uint64(m.regs.ReadInt(inst.Rs1) + inst.ImmISigned)

	switch inst.Funct3 {
	case insts.WidthW:
		v, ok := m.mmu.ReadMem(addr, 4)
		if !ok {
			return aborted
		}
		m.regs.WriteFloat32Bits(inst.Rd, uint32(v))
	case insts.WidthD:
		v, ok := m.mmu.ReadMem(addr, 8)
		if !ok {
			return aborted
		}
		m.regs.WriteFP(inst.Rd, v)
	default:
		return m.unknown(inst)
	}

	return committed
}

// executeStoreFP performs FSW and FSD. The register bits are stored
// unchanged.
func (m *Machine) executeStoreFP(inst insts.Instruction) outcome {
	addr := uint64(m.regs.ReadInt(inst.Rs1) + inst.ImmSSigned)
	v := m.regs.ReadFP(inst.Rs2)

	var size int
	switch inst.Funct3 {
	case insts.WidthW:
		size = 4
	case insts.WidthD:
		size = 8
	default:
		return m.unknown(inst)
	}

	if !m.mmu.WriteMem(addr, size, v) {
		return aborted
	}
	return committed
}
