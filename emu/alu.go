// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import (
	"math"
	"math/bits"

	"github.com/Kyllano/TacOS/insts"
)

// MulH returns the high 64 bits of the signed 128-bit product a*b.
func MulH(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return int64(hi)
}

// MulHSU returns the high 64 bits of the product of signed a and unsigned b.
func MulHSU(a int64, b uint64) int64 {
	hi, _ := bits.Mul64(uint64(a), b)
	if a < 0 {
		hi -= b
	}
	return int64(hi)
}

// MulHU returns the high 64 bits of the unsigned product a*b.
func MulHU(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	return hi
}

// Div is the signed 64-bit division. Division by zero yields -1 and
// MinInt64 / -1 yields MinInt64.
func Div(a, b int64) int64 {
	switch {
	case b == 0:
		return -1
	case a == math.MinInt64 && b == -1:
		return a
	}
	return a / b
}

// DivU is the unsigned 64-bit division. Division by zero yields all ones.
func DivU(a, b uint64) uint64 {
	if b == 0 {
		return math.MaxUint64
	}
	return a / b
}

// Rem is the signed 64-bit remainder. x % 0 is x and MinInt64 % -1 is 0.
func Rem(a, b int64) int64 {
	switch {
	case b == 0:
		return a
	case a == math.MinInt64 && b == -1:
		return 0
	}
	return a % b
}

// RemU is the unsigned 64-bit remainder. x % 0 is x.
func RemU(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

// DivW is the signed 32-bit division, sign-extended to 64 bits.
func DivW(a, b int32) int64 {
	switch {
	case b == 0:
		return -1
	case a == math.MinInt32 && b == -1:
		return int64(a)
	}
	return int64(a / b)
}

// DivUW is the unsigned 32-bit division, sign-extended to 64 bits.
func DivUW(a, b uint32) int64 {
	if b == 0 {
		return -1
	}
	return int64(int32(a / b))
}

// RemW is the signed 32-bit remainder, sign-extended to 64 bits.
func RemW(a, b int32) int64 {
	switch {
	case b == 0:
		return int64(a)
	case a == math.MinInt32 && b == -1:
		return 0
	}
	return int64(a % b)
}

// RemUW is the unsigned 32-bit remainder, sign-extended to 64 bits.
func RemUW(a, b uint32) int64 {
	if b == 0 {
		return int64(int32(a))
	}
	return int64(int32(a % b))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// srl is a logical right shift of a 64-bit value by s (0..63).
func (m *Machine) srl(a int64, s uint8) int64 {
	return int64(uint64(a>>s) & m.shiftMask[s])
}

// srlw is a logical right shift of the low 32 bits of a by s (0..31),
// sign-extended to 64 bits.
func (m *Machine) srlw(a int64, s uint8) int64 {
	v := uint64(int64(int32(a))>>s) & m.shiftMask[32+s]
	return int64(int32(v))
}

// aluOp computes the base OP / OP-IMM operations on 64-bit operands. alt
// selects SUB and SRA.
func (m *Machine) aluOp(funct3 uint8, alt bool, a, b int64) int64 {
	s := uint8(b & 0x3F)
	switch funct3 {
	case insts.AluADD:
		if alt {
			return a - b
		}
		return a + b
	case insts.AluSLL:
		return a << s
	case insts.AluSLT:
		return boolToInt(a < b)
	case insts.AluSLTU:
		return boolToInt(uint64(a) < uint64(b))
	case insts.AluXOR:
		return a ^ b
	case insts.AluSR:
		if alt {
			return a >> s
		}
		return m.srl(a, s)
	case insts.AluOR:
		return a | b
	default:
		return a & b
	}
}

// mulDivOp computes the M extension operations on 64-bit operands.
func mulDivOp(funct3 uint8, a, b int64) int64 {
	switch funct3 {
	case insts.MulMUL:
		return a * b
	case insts.MulMULH:
		return MulH(a, b)
	case insts.MulMULHSU:
		return MulHSU(a, uint64(b))
	case insts.MulMULHU:
		return int64(MulHU(uint64(a), uint64(b)))
	case insts.MulDIV:
		return Div(a, b)
	case insts.MulDIVU:
		return int64(DivU(uint64(a), uint64(b)))
	case insts.MulREM:
		return Rem(a, b)
	default:
		return int64(RemU(uint64(a), uint64(b)))
	}
}

// executeOpImm performs the register-immediate operations.
func (m *Machine) executeOpImm(inst insts.Instruction) outcome {
	a := m.regs.ReadInt(inst.Rs1)
	imm := inst.ImmISigned

	switch inst.Funct3 {
	case insts.AluSLL:
		if inst.Funct7Smaller != 0 {
			return m.unknown(inst)
		}
		imm = int64(inst.Shamt)
	case insts.AluSR:
		if inst.Funct7Smaller != 0 && inst.Funct7Smaller != insts.Funct7SmallerSRA {
			return m.unknown(inst)
		}
		imm = int64(inst.Shamt)
	}

	alt := inst.Funct3 == insts.AluSR && inst.Funct7Smaller == insts.Funct7SmallerSRA
	m.regs.WriteInt(inst.Rd, m.aluOp(inst.Funct3, alt, a, imm))
	return committed
}

// executeOpImm32 performs ADDIW, SLLIW, SRLIW and SRAIW.
func (m *Machine) executeOpImm32(inst insts.Instruction) outcome {
	a := m.regs.ReadInt(inst.Rs1)
	var r int64

	switch {
	case inst.Funct3 == insts.AluADD:
		r = int64(int32(a + inst.ImmISigned))
	case inst.Funct3 == insts.AluSLL && inst.Funct7 == insts.Funct7Base:
		r = int64(int32(uint32(a) << inst.Shamt32))
	case inst.Funct3 == insts.AluSR && inst.Funct7 == insts.Funct7Base:
		r = m.srlw(a, inst.Shamt32)
	case inst.Funct3 == insts.AluSR && inst.Funct7 == insts.Funct7Alt:
		r = int64(int32(a) >> inst.Shamt32)
	default:
		return m.unknown(inst)
	}

	m.regs.WriteInt(inst.Rd, r)
	return committed
}

// executeOp performs the register-register operations, including the M
// extension.
func (m *Machine) executeOp(inst insts.Instruction) outcome {
	a := m.regs.ReadInt(inst.Rs1)
	b := m.regs.ReadInt(inst.Rs2)
	var r int64

	switch inst.Funct7 {
	case insts.Funct7Base:
		r = m.aluOp(inst.Funct3, false, a, b)
	case insts.Funct7Alt:
		if inst.Funct3 != insts.AluADD && inst.Funct3 != insts.AluSR {
			return m.unknown(inst)
		}
		r = m.aluOp(inst.Funct3, true, a, b)
	case insts.Funct7MulDiv:
		r = mulDivOp(inst.Funct3, a, b)
	default:
		return m.unknown(inst)
	}

	m.regs.WriteInt(inst.Rd, r)
	return committed
}

// executeOp32 performs the 32-bit register-register operations. Results
// are sign-extended to 64 bits.
func (m *Machine) executeOp32(inst insts.Instruction) outcome {
	a := m.regs.ReadInt(inst.Rs1)
	b := m.regs.ReadInt(inst.Rs2)
	s := uint8(b & 0x1F)
	var r int64

	switch inst.Funct7 {
	case insts.Funct7Base:
		switch inst.Funct3 {
		case insts.AluADD:
			r = int64(int32(a + b))
		case insts.AluSLL:
			r = int64(int32(uint32(a) << s))
		case insts.AluSR:
			r = m.srlw(a, s)
		default:
			return m.unknown(inst)
		}
	case insts.Funct7Alt:
		switch inst.Funct3 {
		case insts.AluADD:
			r = int64(int32(a - b))
		case insts.AluSR:
			r = int64(int32(a) >> s)
		default:
			return m.unknown(inst)
		}
	case insts.Funct7MulDiv:
		switch inst.Funct3 {
		case insts.MulMUL:
			r = int64(int32(a * b))
		case insts.MulDIV:
			r = DivW(int32(a), int32(b))
		case insts.MulDIVU:
			r = DivUW(uint32(a), uint32(b))
		case insts.MulREM:
			r = RemW(int32(a), int32(b))
		case insts.MulREMU:
			r = RemUW(uint32(a), uint32(b))
		default:
			return m.unknown(inst)
		}
	default:
		return m.unknown(inst)
	}

	m.regs.WriteInt(inst.Rd, r)
	return committed
}
