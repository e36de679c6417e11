package insts

import "fmt"

// IntRegNames holds the ABI names of the integer registers.
var IntRegNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// FPRegNames holds the ABI names of the floating-point registers.
var FPRegNames = [32]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

var (
	branchMnemonics = map[uint8]string{
		BranchBEQ: "beq", BranchBNE: "bne", BranchBLT: "blt",
		BranchBGE: "bge", BranchBLTU: "bltu", BranchBGEU: "bgeu",
	}
	loadMnemonics = map[uint8]string{
		LoadLB: "lb", LoadLH: "lh", LoadLW: "lw", LoadLD: "ld",
		LoadLBU: "lbu", LoadLHU: "lhu", LoadLWU: "lwu",
	}
	storeMnemonics = map[uint8]string{
		StoreSB: "sb", StoreSH: "sh", StoreSW: "sw", StoreSD: "sd",
	}
	aluMnemonics = [8]string{"add", "sll", "slt", "sltu", "xor", "srl", "or", "and"}
	mulMnemonics = [8]string{"mul", "mulh", "mulhsu", "mulhu", "div", "divu", "rem", "remu"}
	fpMnemonics  = map[uint8]string{
		FPAdd: "fadd", FPSub: "fsub", FPMul: "fmul", FPDiv: "fdiv", FPSqrt: "fsqrt",
	}
)

func fpSuffix(fmt uint8) string {
	if fmt == FmtD {
		return ".d"
	}
	return ".s"
}

// Disassemble returns a textual form of the instruction located at pc.
// Unrecognized encodings render as a raw .word directive.
func (i Instruction) Disassemble(pc uint64) string {
	x := func(r uint8) string { return IntRegNames[r&0x1F] }
	f := func(r uint8) string { return FPRegNames[r&0x1F] }

	switch i.Class {
	case ClassLUI:
		return fmt.Sprintf("lui %s, 0x%x", x(i.Rd), i.ImmU>>12)
	case ClassAUIPC:
		return fmt.Sprintf("auipc %s, 0x%x", x(i.Rd), i.ImmU>>12)
	case ClassJAL:
		return fmt.Sprintf("jal %s, 0x%x", x(i.Rd), pc+uint64(i.ImmJSigned))
	case ClassJALR:
		return fmt.Sprintf("jalr %s, %d(%s)", x(i.Rd), i.ImmISigned, x(i.Rs1))
	case ClassBranch:
		if m, ok := branchMnemonics[i.Funct3]; ok {
			return fmt.Sprintf("%s %s, %s, 0x%x", m, x(i.Rs1), x(i.Rs2), pc+uint64(i.ImmBSigned))
		}
	case ClassLoad:
		if m, ok := loadMnemonics[i.Funct3]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", m, x(i.Rd), i.ImmISigned, x(i.Rs1))
		}
	case ClassStore:
		if m, ok := storeMnemonics[i.Funct3]; ok {
			return fmt.Sprintf("%s %s, %d(%s)", m, x(i.Rs2), i.ImmSSigned, x(i.Rs1))
		}
	case ClassOpImm:
		switch i.Funct3 {
		case AluSLL:
			return fmt.Sprintf("slli %s, %s, %d", x(i.Rd), x(i.Rs1), i.Shamt)
		case AluSR:
			m := "srli"
			if i.Funct7Smaller == Funct7SmallerSRA {
				m = "srai"
			}
			return fmt.Sprintf("%s %s, %s, %d", m, x(i.Rd), x(i.Rs1), i.Shamt)
		default:
			return fmt.Sprintf("%si %s, %s, %d", aluMnemonics[i.Funct3], x(i.Rd), x(i.Rs1), i.ImmISigned)
		}
	case ClassOpImm32:
		switch i.Funct3 {
		case AluADD:
			return fmt.Sprintf("addiw %s, %s, %d", x(i.Rd), x(i.Rs1), i.ImmISigned)
		case AluSLL:
			return fmt.Sprintf("slliw %s, %s, %d", x(i.Rd), x(i.Rs1), i.Shamt32)
		case AluSR:
			m := "srliw"
			if i.Funct7 == Funct7Alt {
				m = "sraiw"
			}
			return fmt.Sprintf("%s %s, %s, %d", m, x(i.Rd), x(i.Rs1), i.Shamt32)
		}
	case ClassOp, ClassOp32:
		suffix := ""
		if i.Class == ClassOp32 {
			suffix = "w"
		}
		m := aluMnemonics[i.Funct3]
		switch {
		case i.Funct7 == Funct7MulDiv:
			m = mulMnemonics[i.Funct3]
		case i.Funct7 == Funct7Alt && i.Funct3 == AluADD:
			m = "sub"
		case i.Funct7 == Funct7Alt && i.Funct3 == AluSR:
			m = "sra"
		}
		return fmt.Sprintf("%s%s %s, %s, %s", m, suffix, x(i.Rd), x(i.Rs1), x(i.Rs2))
	case ClassMiscMem:
		if i.Funct3 == 1 {
			return "fence.i"
		}
		return "fence"
	case ClassSystem:
		if i.ImmI == 1 {
			return "ebreak"
		}
		return "ecall"
	case ClassLoadFP:
		m := "flw"
		if i.Funct3 == WidthD {
			m = "fld"
		}
		return fmt.Sprintf("%s %s, %d(%s)", m, f(i.Rd), i.ImmISigned, x(i.Rs1))
	case ClassStoreFP:
		m := "fsw"
		if i.Funct3 == WidthD {
			m = "fsd"
		}
		return fmt.Sprintf("%s %s, %d(%s)", m, f(i.Rs2), i.ImmSSigned, x(i.Rs1))
	case ClassFMAdd, ClassFMSub, ClassFNMSub, ClassFNMAdd:
		return fmt.Sprintf("%s%s %s, %s, %s, %s", i.Class, fpSuffix(i.Fmt),
			f(i.Rd), f(i.Rs1), f(i.Rs2), f(i.Rs3))
	case ClassOpFP:
		return i.disassembleOpFP(x, f)
	}

	return fmt.Sprintf(".word 0x%08x", i.Value)
}

func (i Instruction) disassembleOpFP(x, f func(uint8) string) string {
	sfx := fpSuffix(i.Fmt)
	switch i.Funct5 {
	case FPAdd, FPSub, FPMul, FPDiv:
		return fmt.Sprintf("%s%s %s, %s, %s", fpMnemonics[i.Funct5], sfx, f(i.Rd), f(i.Rs1), f(i.Rs2))
	case FPSqrt:
		return fmt.Sprintf("fsqrt%s %s, %s", sfx, f(i.Rd), f(i.Rs1))
	case FPSgnj:
		m := [3]string{"fsgnj", "fsgnjn", "fsgnjx"}
		if i.Funct3 < 3 {
			return fmt.Sprintf("%s%s %s, %s, %s", m[i.Funct3], sfx, f(i.Rd), f(i.Rs1), f(i.Rs2))
		}
	case FPMinMax:
		m := "fmin"
		if i.Funct3 == MinMaxMax {
			m = "fmax"
		}
		return fmt.Sprintf("%s%s %s, %s, %s", m, sfx, f(i.Rd), f(i.Rs1), f(i.Rs2))
	case FPCvtFF:
		return fmt.Sprintf("fcvt%s%s %s, %s", sfx, fpSuffix(i.Rs2), f(i.Rd), f(i.Rs1))
	case FPCmp:
		m := [3]string{"fle", "flt", "feq"}
		if i.Funct3 < 3 {
			return fmt.Sprintf("%s%s %s, %s, %s", m[i.Funct3], sfx, x(i.Rd), f(i.Rs1), f(i.Rs2))
		}
	case FPCvtToInt:
		m := [4]string{".w", ".wu", ".l", ".lu"}
		if i.Rs2 < 4 {
			return fmt.Sprintf("fcvt%s%s %s, %s", m[i.Rs2], sfx, x(i.Rd), f(i.Rs1))
		}
	case FPCvtToFP:
		m := [4]string{".w", ".wu", ".l", ".lu"}
		if i.Rs2 < 4 {
			return fmt.Sprintf("fcvt%s%s %s, %s", sfx, m[i.Rs2], f(i.Rd), x(i.Rs1))
		}
	case FPMvXClass:
		if i.Funct3 == FClass {
			return fmt.Sprintf("fclass%s %s, %s", sfx, x(i.Rd), f(i.Rs1))
		}
		w := ".x.w"
		if i.Fmt == FmtD {
			w = ".x.d"
		}
		return fmt.Sprintf("fmv%s %s, %s", w, x(i.Rd), f(i.Rs1))
	case FPMvToFP:
		w := ".w.x"
		if i.Fmt == FmtD {
			w = ".d.x"
		}
		return fmt.Sprintf("fmv%s %s, %s", w, f(i.Rd), x(i.Rs1))
	}
	return fmt.Sprintf(".word 0x%08x", i.Value)
}
