// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import (
	"math"

	"github.com/Kyllano/TacOS/insts"
)

// FCLASS result bits.
const (
	ClassNegInf       uint64 = 1 << 0
	ClassNegNormal    uint64 = 1 << 1
	ClassNegSubnormal uint64 = 1 << 2
	ClassNegZero      uint64 = 1 << 3
	ClassPosZero      uint64 = 1 << 4
	ClassPosSubnormal uint64 = 1 << 5
	ClassPosNormal    uint64 = 1 << 6
	ClassPosInf       uint64 = 1 << 7
	ClassSignalingNaN uint64 = 1 << 8
	ClassQuietNaN     uint64 = 1 << 9
)

// fclass classifies a floating-point value given its fields. expBits is the
// width of the exponent field and fracBits the width of the fraction.
func fclass(raw uint64, expBits, fracBits uint) uint64 {
	sign := raw>>(expBits+fracBits)&1 == 1
	exp := raw >> fracBits & (1<<expBits - 1)
	frac := raw & (1<<fracBits - 1)
	expMax := uint64(1<<expBits - 1)

	pick := func(neg, pos uint64) uint64 {
		if sign {
			return neg
		}
		return pos
	}

	switch {
	case exp == expMax && frac == 0:
		return pick(ClassNegInf, ClassPosInf)
	case exp == expMax:
		if frac>>(fracBits-1)&1 == 1 {
			return ClassQuietNaN
		}
		return ClassSignalingNaN
	case exp == 0 && frac == 0:
		return pick(ClassNegZero, ClassPosZero)
	case exp == 0:
		return pick(ClassNegSubnormal, ClassPosSubnormal)
	}
	return pick(ClassNegNormal, ClassPosNormal)
}

// FClass32 returns the FCLASS.S mask of a single-precision bit pattern.
func FClass32(v uint32) uint64 {
	return fclass(uint64(v), 8, 23)
}

// FClass64 returns the FCLASS.D mask of a double-precision bit pattern.
func FClass64(v uint64) uint64 {
	return fclass(v, 11, 52)
}

// FMin returns the smaller operand. A single NaN operand is ignored, two
// NaNs give NaN, and -0 orders below +0.
func FMin(a, b float64) float64 {
	return fminmax(a, b, true)
}

// FMax returns the larger operand with the same NaN and zero rules as FMin.
func FMax(a, b float64) float64 {
	return fminmax(a, b, false)
}

func fminmax(a, b float64, wantMin bool) float64 {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return math.NaN()
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case a == b:
		// Only the zeros compare equal with different bits.
		if math.Signbit(a) == wantMin {
			return a
		}
		return b
	case (a < b) == wantMin:
		return a
	}
	return b
}

// roundToInteger rounds v according to a RISC-V rounding mode. The dynamic
// mode uses round-to-nearest-even since fcsr is not modeled.
func roundToInteger(v float64, rm uint8) float64 {
	switch rm {
	case insts.RoundTowardZero:
		return math.Trunc(v)
	case insts.RoundDown:
		return math.Floor(v)
	case insts.RoundUp:
		return math.Ceil(v)
	case insts.RoundNearestMax:
		return math.Round(v)
	}
	return math.RoundToEven(v)
}

func validRoundingMode(rm uint8) bool {
	return rm <= insts.RoundNearestMax || rm == insts.RoundDynamic
}

// ConvertToInt converts v to an integer of the given FCVT selector with
// saturation. NaN converts to the largest positive value. 32-bit results
// are sign-extended to 64 bits.
func ConvertToInt(v float64, sel, rm uint8) int64 {
	nan := math.IsNaN(v)
	r := roundToInteger(v, rm)

	switch sel {
	case insts.CvtW:
		switch {
		case nan || r >= math.MaxInt32:
			return math.MaxInt32
		case r <= math.MinInt32:
			return math.MinInt32
		}
		return int64(int32(r))
	case insts.CvtWU:
		switch {
		case nan || r >= math.MaxUint32:
			return int64(int32(-1))
		case r <= 0:
			return 0
		}
		return int64(int32(uint32(r)))
	case insts.CvtL:
		switch {
		case nan || r >= 0x1p63:
			return math.MaxInt64
		case r <= -0x1p63:
			return math.MinInt64
		}
		return int64(r)
	default:
		switch {
		case nan || r >= 0x1p64:
			return -1
		case r <= 0:
			return 0
		}
		return int64(uint64(r))
	}
}

// ConvertFromInt converts the integer x, interpreted per the FCVT
// selector, to a float64.
func ConvertFromInt(x int64, sel uint8) float64 {
	switch sel {
	case insts.CvtW:
		return float64(int32(x))
	case insts.CvtWU:
		return float64(uint32(x))
	case insts.CvtL:
		return float64(x)
	default:
		return float64(uint64(x))
	}
}

// ConvertFromInt32 converts the integer x to a correctly rounded float32.
func ConvertFromInt32(x int64, sel uint8) float32 {
	switch sel {
	case insts.CvtW:
		return float32(int32(x))
	case insts.CvtWU:
		return float32(uint32(x))
	case insts.CvtL:
		return float32(x)
	default:
		return float32(uint64(x))
	}
}

// readF reads a floating-point register in the given format, widened to
// float64.
func (m *Machine) readF(r, fmt uint8) float64 {
	if fmt == insts.FmtS {
		return float64(m.regs.ReadFloat32(r))
	}
	return m.regs.ReadFloat64(r)
}

// writeF narrows v to the given format and writes it. NaN results are
// replaced by the canonical NaN.
func (m *Machine) writeF(r, fmt uint8, v float64) {
	if fmt == insts.FmtS {
		if math.IsNaN(v) {
			m.regs.WriteFloat32Bits(r, canonicalNaN32)
			return
		}
		m.regs.WriteFloat32(r, float32(v))
		return
	}
	if math.IsNaN(v) {
		m.regs.WriteFP(r, canonicalNaN64)
		return
	}
	m.regs.WriteFloat64(r, v)
}

// executeFMA performs the fused multiply-add family.
func (m *Machine) executeFMA(inst insts.Instruction) outcome {
	if inst.Fmt > insts.FmtD || !validRoundingMode(inst.Rm()) {
		return m.unknown(inst)
	}

	a := m.readF(inst.Rs1, inst.Fmt)
	b := m.readF(inst.Rs2, inst.Fmt)
	c := m.readF(inst.Rs3, inst.Fmt)

	// Singles are fused in float64 and narrowed in writeF. The float64 result
	// is exact only while a*b fits in 53 bits, so a few single-precision
	// results can round twice.
	var r float64
	switch inst.Class {
	case insts.ClassFMAdd:
		r = math.FMA(a, b, c)
	case insts.ClassFMSub:
		r = math.FMA(a, b, -c)
	case insts.ClassFNMSub:
		r = math.FMA(-a, b, c)
	default:
		r = math.FMA(-a, b, -c)
	}

	m.writeF(inst.Rd, inst.Fmt, r)
	return committed
}

// executeOpFP performs the OP-FP instructions.
func (m *Machine) executeOpFP(inst insts.Instruction) outcome {
	fmt := inst.Fmt
	if fmt > insts.FmtD {
		return m.unknown(inst)
	}

	switch inst.Funct5 {
	case insts.FPAdd, insts.FPSub, insts.FPMul, insts.FPDiv, insts.FPSqrt:
		return m.executeFPArith(inst)

	case insts.FPSgnj:
		return m.executeFPSgnj(inst)

	case insts.FPMinMax:
		a, b := m.readF(inst.Rs1, fmt), m.readF(inst.Rs2, fmt)
		switch inst.Funct3 {
		case insts.MinMaxMin:
			m.writeF(inst.Rd, fmt, FMin(a, b))
		case insts.MinMaxMax:
			m.writeF(inst.Rd, fmt, FMax(a, b))
		default:
			return m.unknown(inst)
		}

	case insts.FPCvtFF:
		// FCVT.S.D has fmt S and source D in rs2, FCVT.D.S the reverse.
		switch {
		case fmt == insts.FmtS && inst.Rs2 == insts.FmtD:
			m.writeF(inst.Rd, insts.FmtS, m.regs.ReadFloat64(inst.Rs1))
		case fmt == insts.FmtD && inst.Rs2 == insts.FmtS:
			m.writeF(inst.Rd, insts.FmtD, float64(m.regs.ReadFloat32(inst.Rs1)))
		default:
			return m.unknown(inst)
		}

	case insts.FPCmp:
		a, b := m.readF(inst.Rs1, fmt), m.readF(inst.Rs2, fmt)
		var r bool
		switch inst.Funct3 {
		case insts.CmpFEQ:
			r = a == b
		case insts.CmpFLT:
			r = a < b
		case insts.CmpFLE:
			r = a <= b
		default:
			return m.unknown(inst)
		}
		m.regs.WriteInt(inst.Rd, boolToInt(r))

	case insts.FPCvtToInt:
		if inst.Rs2 > insts.CvtLU || !validRoundingMode(inst.Rm()) {
			return m.unknown(inst)
		}
		v := m.readF(inst.Rs1, fmt)
		m.regs.WriteInt(inst.Rd, ConvertToInt(v, inst.Rs2, inst.Rm()))

	case insts.FPCvtToFP:
		if inst.Rs2 > insts.CvtLU || !validRoundingMode(inst.Rm()) {
			return m.unknown(inst)
		}
		x := m.regs.ReadInt(inst.Rs1)
		if fmt == insts.FmtS {
			m.regs.WriteFloat32(inst.Rd, ConvertFromInt32(x, inst.Rs2))
		} else {
			m.regs.WriteFloat64(inst.Rd, ConvertFromInt(x, inst.Rs2))
		}

	case insts.FPMvXClass:
		raw := m.regs.ReadFP(inst.Rs1)
		switch {
		case inst.Funct3 == insts.MvX && fmt == insts.FmtS:
			m.regs.WriteInt(inst.Rd, int64(int32(uint32(raw))))
		case inst.Funct3 == insts.MvX:
			m.regs.WriteInt(inst.Rd, int64(raw))
		case inst.Funct3 == insts.FClass && fmt == insts.FmtS:
			m.regs.WriteInt(inst.Rd, int64(FClass32(m.regs.ReadFloat32Bits(inst.Rs1))))
		case inst.Funct3 == insts.FClass:
			m.regs.WriteInt(inst.Rd, int64(FClass64(raw)))
		default:
			return m.unknown(inst)
		}

	case insts.FPMvToFP:
		if inst.Funct3 != 0 {
			return m.unknown(inst)
		}
		x := uint64(m.regs.ReadInt(inst.Rs1))
		if fmt == insts.FmtS {
			m.regs.WriteFloat32Bits(inst.Rd, uint32(x))
		} else {
			m.regs.WriteFP(inst.Rd, x)
		}

	default:
		return m.unknown(inst)
	}

	return committed
}

// executeFPArith performs FADD, FSUB, FMUL, FDIV and FSQRT. Single
// precision is computed in double precision and rounded once, which is
// exact for these operations.
func (m *Machine) executeFPArith(inst insts.Instruction) outcome {
	if !validRoundingMode(inst.Rm()) {
		return m.unknown(inst)
	}

	fmt := inst.Fmt
	a := m.readF(inst.Rs1, fmt)
	b := m.readF(inst.Rs2, fmt)

	var r float64
	switch inst.Funct5 {
	case insts.FPAdd:
		r = a + b
	case insts.FPSub:
		r = a - b
	case insts.FPMul:
		r = a * b
	case insts.FPDiv:
		r = a / b
	default:
		if inst.Rs2 != 0 {
			return m.unknown(inst)
		}
		r = math.Sqrt(a)
	}

	m.writeF(inst.Rd, fmt, r)
	return committed
}

// executeFPSgnj performs the sign-injection instructions on raw bits.
func (m *Machine) executeFPSgnj(inst insts.Instruction) outcome {
	var signBit uint64 = 1 << 63
	a, b := m.regs.ReadFP(inst.Rs1), m.regs.ReadFP(inst.Rs2)
	if inst.Fmt == insts.FmtS {
		signBit = 1 << 31
		a = uint64(m.regs.ReadFloat32Bits(inst.Rs1))
		b = uint64(m.regs.ReadFloat32Bits(inst.Rs2))
	}

	var sign uint64
	switch inst.Funct3 {
	case insts.SgnjJ:
		sign = b & signBit
	case insts.SgnjJN:
		sign = ^b & signBit
	case insts.SgnjJX:
		sign = (a ^ b) & signBit
	default:
		return m.unknown(inst)
	}

	r := a&^signBit | sign
	if inst.Fmt == insts.FmtS {
		m.regs.WriteFloat32Bits(inst.Rd, uint32(r))
	} else {
		m.regs.WriteFP(inst.Rd, r)
	}
	return committed
}
