package insts

// Instruction is a decoded view of one 32-bit RISC-V instruction word.
// Every field is extracted regardless of the instruction format; the
// execution core reads the ones its class needs. Immediates are available
// both as raw bits and sign-extended to the 64-bit machine word.
type Instruction struct {
	Value uint32 // Raw instruction word
	Class Class  // Decoded instruction class

	Opcode        uint8 // bits [6:0]
	Rd            uint8 // bits [11:7]
	Funct3        uint8 // bits [14:12], also the FP rounding mode
	Rs1           uint8 // bits [19:15]
	Rs2           uint8 // bits [24:20]
	Rs3           uint8 // bits [31:27]
	Funct7        uint8 // bits [31:25]
	Funct7Smaller uint8 // bits [31:26], selects SRLI/SRAI on RV64
	Funct5        uint8 // bits [31:27], OP-FP operation
	Fmt           uint8 // bits [26:25], FP width
	Shamt         uint8 // bits [25:20]
	Shamt32       uint8 // bits [24:20]

	ImmI uint32 // imm[11:0]
	ImmS uint32 // imm[11:5|4:0]
	ImmB uint32 // imm[12|10:5|4:1|11] reassembled, bit 0 clear
	ImmU uint32 // imm[31:12] in place, low 12 bits clear
	ImmJ uint32 // imm[20|10:1|11|19:12] reassembled, bit 0 clear

	ImmISigned int64
	ImmSSigned int64
	ImmBSigned int64
	ImmUSigned int64
	ImmJSigned int64
}

// Rm returns the rounding-mode field of a floating-point instruction.
func (i Instruction) Rm() uint8 {
	return i.Funct3
}

// Decoder decodes RISC-V machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RISC-V instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit RISC-V instruction word.
func (d *Decoder) Decode(word uint32) Instruction {
	return Decode(word)
}

// Decode decodes a 32-bit RISC-V instruction word. Decoding never fails;
// undefined encodings carry ClassUnknown or an unused funct combination and
// are rejected by the execution core.
func Decode(word uint32) Instruction {
	inst := Instruction{
		Value:         word,
		Opcode:        uint8(word & 0x7F),
		Rd:            uint8((word >> 7) & 0x1F),
		Funct3:        uint8((word >> 12) & 0x7),
		Rs1:           uint8((word >> 15) & 0x1F),
		Rs2:           uint8((word >> 20) & 0x1F),
		Rs3:           uint8(word >> 27),
		Funct7:        uint8(word >> 25),
		Funct7Smaller: uint8(word >> 26),
		Funct5:        uint8(word >> 27),
		Fmt:           uint8((word >> 25) & 0x3),
		Shamt:         uint8((word >> 20) & 0x3F),
		Shamt32:       uint8((word >> 20) & 0x1F),
	}
	inst.Class = classByOpcode[inst.Opcode]

	inst.ImmI = word >> 20
	inst.ImmS = ((word >> 25) << 5) | ((word >> 7) & 0x1F)
	inst.ImmB = ((word >> 31) << 12) |
		(((word >> 7) & 0x1) << 11) |
		(((word >> 25) & 0x3F) << 5) |
		(((word >> 8) & 0xF) << 1)
	inst.ImmU = word & 0xFFFFF000
	inst.ImmJ = ((word >> 31) << 20) |
		(((word >> 12) & 0xFF) << 12) |
		(((word >> 20) & 0x1) << 11) |
		(((word >> 21) & 0x3FF) << 1)

	inst.ImmISigned = signExtend(inst.ImmI, 12)
	inst.ImmSSigned = signExtend(inst.ImmS, 12)
	inst.ImmBSigned = signExtend(inst.ImmB, 13)
	inst.ImmUSigned = signExtend(inst.ImmU, 32)
	inst.ImmJSigned = signExtend(inst.ImmJ, 21)

	return inst
}

// signExtend sign-extends the low bits of v to 64 bits.
func signExtend(v uint32, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(v)<<shift) >> shift
}
