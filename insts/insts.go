// Package insts provides RISC-V instruction definitions and decoding.
//
// This package implements decoding of RV64IMFD machine code into a flat,
// immutable field view. It supports:
//   - Base integer: LUI, AUIPC, JAL, JALR, branches, loads, stores, OP, OP-IMM
//     and their 32-bit "W" forms
//   - M extension: MUL[H[SU|U]], DIV[U], REM[U] and W forms
//   - F/D extensions: loads/stores, fused multiply-add, arithmetic, conversions
//   - MISC-MEM and SYSTEM
//
// Usage:
//
//	inst := insts.Decode(0x00500093) // ADDI x1, x0, 5
//	fmt.Printf("class=%v rd=%d rs1=%d imm=%d\n", inst.Class, inst.Rd, inst.Rs1, inst.ImmISigned)
package insts

// Major opcodes (bits 6:0).
const (
	OpcodeLoad    uint8 = 0x03
	OpcodeLoadFP  uint8 = 0x07
	OpcodeMiscMem uint8 = 0x0F
	OpcodeOpImm   uint8 = 0x13
	OpcodeAUIPC   uint8 = 0x17
	OpcodeOpImm32 uint8 = 0x1B
	OpcodeStore   uint8 = 0x23
	OpcodeStoreFP uint8 = 0x27
	OpcodeOp      uint8 = 0x33
	OpcodeLUI     uint8 = 0x37
	OpcodeOp32    uint8 = 0x3B
	OpcodeFMAdd   uint8 = 0x43
	OpcodeFMSub   uint8 = 0x47
	OpcodeFNMSub  uint8 = 0x4B
	OpcodeFNMAdd  uint8 = 0x4F
	OpcodeOpFP    uint8 = 0x53
	OpcodeBranch  uint8 = 0x63
	OpcodeJALR    uint8 = 0x67
	OpcodeJAL     uint8 = 0x6F
	OpcodeSystem  uint8 = 0x73
)

// Branch funct3 values.
const (
	BranchBEQ  uint8 = 0
	BranchBNE  uint8 = 1
	BranchBLT  uint8 = 4
	BranchBGE  uint8 = 5
	BranchBLTU uint8 = 6
	BranchBGEU uint8 = 7
)

// Load funct3 values.
const (
	LoadLB  uint8 = 0
	LoadLH  uint8 = 1
	LoadLW  uint8 = 2
	LoadLD  uint8 = 3
	LoadLBU uint8 = 4
	LoadLHU uint8 = 5
	LoadLWU uint8 = 6
)

// Store funct3 values.
const (
	StoreSB uint8 = 0
	StoreSH uint8 = 1
	StoreSW uint8 = 2
	StoreSD uint8 = 3
)

// OP and OP-IMM funct3 values.
const (
	AluADD  uint8 = 0 // ADD/SUB, ADDI
	AluSLL  uint8 = 1
	AluSLT  uint8 = 2
	AluSLTU uint8 = 3
	AluXOR  uint8 = 4
	AluSR   uint8 = 5 // SRL/SRA
	AluOR   uint8 = 6
	AluAND  uint8 = 7
)

// M extension funct3 values (funct7 == Funct7MulDiv).
const (
	MulMUL    uint8 = 0
	MulMULH   uint8 = 1
	MulMULHSU uint8 = 2
	MulMULHU  uint8 = 3
	MulDIV    uint8 = 4
	MulDIVU   uint8 = 5
	MulREM    uint8 = 6
	MulREMU   uint8 = 7
)

// funct7 values for OP / OP-32.
const (
	Funct7Base   uint8 = 0x00
	Funct7MulDiv uint8 = 0x01
	Funct7Alt    uint8 = 0x20 // SUB, SRA
)

// Funct7SmallerSRA is the 6-bit funct field (bits 31:26) of SRAI on RV64.
const Funct7SmallerSRA uint8 = 0x10

// Floating-point widths, in the fmt field (bits 26:25) and load/store funct3.
const (
	FmtS uint8 = 0
	FmtD uint8 = 1

	WidthW uint8 = 2 // FLW/FSW
	WidthD uint8 = 3 // FLD/FSD
)

// OP-FP funct5 values (bits 31:27).
const (
	FPAdd      uint8 = 0x00
	FPSub      uint8 = 0x01
	FPMul      uint8 = 0x02
	FPDiv      uint8 = 0x03
	FPSgnj     uint8 = 0x04
	FPMinMax   uint8 = 0x05
	FPCvtFF    uint8 = 0x08 // FCVT.S.D / FCVT.D.S
	FPSqrt     uint8 = 0x0B
	FPCmp      uint8 = 0x14
	FPCvtToInt uint8 = 0x18 // FCVT.{W,WU,L,LU}.{S,D}
	FPCvtToFP  uint8 = 0x1A // FCVT.{S,D}.{W,WU,L,LU}
	FPMvXClass uint8 = 0x1C // FMV.X.{W,D}, FCLASS
	FPMvToFP   uint8 = 0x1E // FMV.{W,D}.X
)

// Sub-modes selected by funct3 inside OP-FP.
const (
	SgnjJ  uint8 = 0
	SgnjJN uint8 = 1
	SgnjJX uint8 = 2

	MinMaxMin uint8 = 0
	MinMaxMax uint8 = 1

	CmpFLE uint8 = 0
	CmpFLT uint8 = 1
	CmpFEQ uint8 = 2

	MvX    uint8 = 0
	FClass uint8 = 1
)

// Integer conversion selectors carried in rs2 for FCVT.
const (
	CvtW  uint8 = 0
	CvtWU uint8 = 1
	CvtL  uint8 = 2
	CvtLU uint8 = 3
)

// Rounding modes (rm field).
const (
	RoundNearestEven uint8 = 0
	RoundTowardZero  uint8 = 1
	RoundDown        uint8 = 2
	RoundUp          uint8 = 3
	RoundNearestMax  uint8 = 4
	RoundDynamic     uint8 = 7
)

// Class is the tagged variant over decoded instruction classes. The execution
// core switches on Class first and on the funct fields second.
type Class uint8

// Instruction classes.
const (
	ClassUnknown Class = iota
	ClassLUI
	ClassAUIPC
	ClassJAL
	ClassJALR
	ClassBranch
	ClassLoad
	ClassStore
	ClassOpImm
	ClassOpImm32
	ClassOp
	ClassOp32
	ClassMiscMem
	ClassSystem
	ClassLoadFP
	ClassStoreFP
	ClassFMAdd
	ClassFMSub
	ClassFNMSub
	ClassFNMAdd
	ClassOpFP
)

var classNames = [...]string{
	ClassUnknown: "unknown",
	ClassLUI:     "lui",
	ClassAUIPC:   "auipc",
	ClassJAL:     "jal",
	ClassJALR:    "jalr",
	ClassBranch:  "branch",
	ClassLoad:    "load",
	ClassStore:   "store",
	ClassOpImm:   "op-imm",
	ClassOpImm32: "op-imm-32",
	ClassOp:      "op",
	ClassOp32:    "op-32",
	ClassMiscMem: "misc-mem",
	ClassSystem:  "system",
	ClassLoadFP:  "load-fp",
	ClassStoreFP: "store-fp",
	ClassFMAdd:   "fmadd",
	ClassFMSub:   "fmsub",
	ClassFNMSub:  "fnmsub",
	ClassFNMAdd:  "fnmadd",
	ClassOpFP:    "op-fp",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// classByOpcode maps the 7-bit major opcode to its class.
var classByOpcode = [128]Class{
	OpcodeLoad:    ClassLoad,
	OpcodeLoadFP:  ClassLoadFP,
	OpcodeMiscMem: ClassMiscMem,
	OpcodeOpImm:   ClassOpImm,
	OpcodeAUIPC:   ClassAUIPC,
	OpcodeOpImm32: ClassOpImm32,
	OpcodeStore:   ClassStore,
	OpcodeStoreFP: ClassStoreFP,
	OpcodeOp:      ClassOp,
	OpcodeLUI:     ClassLUI,
	OpcodeOp32:    ClassOp32,
	OpcodeFMAdd:   ClassFMAdd,
	OpcodeFMSub:   ClassFMSub,
	OpcodeFNMSub:  ClassFNMSub,
	OpcodeFNMAdd:  ClassFNMAdd,
	OpcodeOpFP:    ClassOpFP,
	OpcodeBranch:  ClassBranch,
	OpcodeJALR:    ClassJALR,
	OpcodeJAL:     ClassJAL,
	OpcodeSystem:  ClassSystem,
}
