// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import "github.com/Kyllano/TacOS/insts"

// branchTaken evaluates a conditional branch comparison.
func branchTaken(funct3 uint8, a, b int64) (bool, bool) {
	switch funct3 {
	case insts.BranchBEQ:
		return a == b, true
	case insts.BranchBNE:
		return a != b, true
	case insts.BranchBLT:
		return a < b, true
	case insts.BranchBGE:
		return a >= b, true
	case insts.BranchBLTU:
		return uint64(a) < uint64(b), true
	case insts.BranchBGEU:
		return uint64(a) >= uint64(b), true
	}
	return false, false
}

// executeBranch handles JAL, JALR and conditional branches. Targets are
// relative to the address of the instruction itself.
func (m *Machine) executeBranch(inst insts.Instruction, pc uint64) (uint64, outcome) {
	next := pc + 4

	switch inst.Class {
	case insts.ClassJAL:
		m.regs.WriteInt(inst.Rd, int64(next))
		return pc + uint64(inst.ImmJSigned), committed

	case insts.ClassJALR:
		if inst.Funct3 != 0 {
			return next, m.unknown(inst)
		}
		target := uint64(m.regs.ReadInt(inst.Rs1)+inst.ImmISigned) &^ 1
		m.regs.WriteInt(inst.Rd, int64(next))
		return target, committed
	}

	taken, ok := branchTaken(inst.Funct3, m.regs.ReadInt(inst.Rs1), m.regs.ReadInt(inst.Rs2))
	if !ok {
		return next, m.unknown(inst)
	}
	if taken {
		return pc + uint64(inst.ImmBSigned), committed
	}
	return next, committed
}
