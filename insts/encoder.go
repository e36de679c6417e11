package insts

// Instruction encoding helpers, used by tests and by tools that build small
// guest programs in memory.

// EncodeR encodes an R-type instruction.
func EncodeR(opcode uint8, rd, funct3, rs1, rs2, funct7 uint8) uint32 {
	return uint32(funct7)<<25 | uint32(rs2&0x1F)<<20 | uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 | uint32(rd&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeR4 encodes an R4-type (fused multiply-add) instruction.
func EncodeR4(opcode uint8, rd, rm, rs1, rs2, rs3, fmt uint8) uint32 {
	return uint32(rs3&0x1F)<<27 | uint32(fmt&0x3)<<25 | uint32(rs2&0x1F)<<20 |
		uint32(rs1&0x1F)<<15 | uint32(rm&0x7)<<12 | uint32(rd&0x1F)<<7 |
		uint32(opcode&0x7F)
}

// EncodeI encodes an I-type instruction with a 12-bit signed immediate.
func EncodeI(opcode uint8, rd, funct3, rs1 uint8, imm int32) uint32 {
	return uint32(imm&0xFFF)<<20 | uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 | uint32(rd&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeS encodes an S-type instruction with a 12-bit signed immediate.
func EncodeS(opcode uint8, funct3, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7F)<<25 | uint32(rs2&0x1F)<<20 | uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 | (u&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeB encodes a conditional branch with a 13-bit signed, even offset.
func EncodeB(funct3, rs1, rs2 uint8, offset int32) uint32 {
	u := uint32(offset)
	return ((u>>12)&0x1)<<31 | ((u>>5)&0x3F)<<25 | uint32(rs2&0x1F)<<20 |
		uint32(rs1&0x1F)<<15 | uint32(funct3&0x7)<<12 | ((u>>1)&0xF)<<8 |
		((u>>11)&0x1)<<7 | uint32(OpcodeBranch)
}

// EncodeU encodes a U-type instruction. imm20 is the value placed in bits
// [31:12].
func EncodeU(opcode uint8, rd uint8, imm20 uint32) uint32 {
	return (imm20&0xFFFFF)<<12 | uint32(rd&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeJ encodes a JAL with a 21-bit signed, even offset.
func EncodeJ(rd uint8, offset int32) uint32 {
	u := uint32(offset)
	return ((u>>20)&0x1)<<31 | ((u>>1)&0x3FF)<<21 | ((u>>11)&0x1)<<20 |
		((u>>12)&0xFF)<<12 | uint32(rd&0x1F)<<7 | uint32(OpcodeJAL)
}

// ADDI encodes ADDI rd, rs1, imm.
func ADDI(rd, rs1 uint8, imm int32) uint32 {
	return EncodeI(OpcodeOpImm, rd, AluADD, rs1, imm)
}

// LUI encodes LUI rd, imm20.
func LUI(rd uint8, imm20 uint32) uint32 {
	return EncodeU(OpcodeLUI, rd, imm20)
}

// JAL encodes JAL rd, offset.
func JAL(rd uint8, offset int32) uint32 {
	return EncodeJ(rd, offset)
}

// JALR encodes JALR rd, imm(rs1).
func JALR(rd, rs1 uint8, imm int32) uint32 {
	return EncodeI(OpcodeJALR, rd, 0, rs1, imm)
}

// BEQ encodes BEQ rs1, rs2, offset.
func BEQ(rs1, rs2 uint8, offset int32) uint32 {
	return EncodeB(BranchBEQ, rs1, rs2, offset)
}

// Load encodes a load of the given funct3 width: rd = mem[rs1+imm].
func Load(funct3, rd, rs1 uint8, imm int32) uint32 {
	return EncodeI(OpcodeLoad, rd, funct3, rs1, imm)
}

// Store encodes a store of the given funct3 width: mem[rs1+imm] = rs2.
func Store(funct3, rs1, rs2 uint8, imm int32) uint32 {
	return EncodeS(OpcodeStore, funct3, rs1, rs2, imm)
}

// Op encodes a register-register OP instruction.
func Op(funct3, funct7, rd, rs1, rs2 uint8) uint32 {
	return EncodeR(OpcodeOp, rd, funct3, rs1, rs2, funct7)
}

// Op32 encodes a register-register OP-32 instruction.
func Op32(funct3, funct7, rd, rs1, rs2 uint8) uint32 {
	return EncodeR(OpcodeOp32, rd, funct3, rs1, rs2, funct7)
}

// OpFP encodes an OP-FP instruction.
func OpFP(funct5, fmt, rd, rm, rs1, rs2 uint8) uint32 {
	return EncodeR(OpcodeOpFP, rd, rm, rs1, rs2, funct5<<2|fmt&0x3)
}

// ECALL encodes the environment call instruction.
func ECALL() uint32 {
	return uint32(OpcodeSystem)
}
