package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Kyllano/TacOS/emu"
	"github.com/Kyllano/TacOS/insts"
)

var _ = Describe("ALU", func() {
	Describe("Division", func() {
		DescribeTable("64-bit signed",
			func(a, b, quot, rem int64) {
				Expect(emu.Div(a, b)).To(Equal(quot))
				Expect(emu.Rem(a, b)).To(Equal(rem))
			},
			Entry("ordinary", int64(7), int64(2), int64(3), int64(1)),
			Entry("truncates toward zero", int64(-7), int64(2), int64(-3), int64(-1)),
			Entry("by zero", int64(42), int64(0), int64(-1), int64(42)),
			Entry("overflow", int64(math.MinInt64), int64(-1), int64(math.MinInt64), int64(0)),
		)

		DescribeTable("64-bit unsigned",
			func(a, b, quot, rem uint64) {
				Expect(emu.DivU(a, b)).To(Equal(quot))
				Expect(emu.RemU(a, b)).To(Equal(rem))
			},
			Entry("ordinary", uint64(7), uint64(2), uint64(3), uint64(1)),
			Entry("large dividend", uint64(math.MaxUint64), uint64(2), uint64(math.MaxUint64/2), uint64(1)),
			Entry("by zero", uint64(42), uint64(0), uint64(math.MaxUint64), uint64(42)),
		)

		DescribeTable("32-bit signed",
			func(a, b int32, quot, rem int64) {
				Expect(emu.DivW(a, b)).To(Equal(quot))
				Expect(emu.RemW(a, b)).To(Equal(rem))
			},
			Entry("ordinary", int32(-9), int32(4), int64(-2), int64(-1)),
			Entry("by zero", int32(-5), int32(0), int64(-1), int64(-5)),
			Entry("overflow", int32(math.MinInt32), int32(-1), int64(math.MinInt32), int64(0)),
		)

		DescribeTable("32-bit unsigned",
			func(a, b uint32, quot, rem int64) {
				Expect(emu.DivUW(a, b)).To(Equal(quot))
				Expect(emu.RemUW(a, b)).To(Equal(rem))
			},
			Entry("ordinary", uint32(9), uint32(4), int64(2), int64(1)),
			Entry("by zero", uint32(0x80000000), uint32(0), int64(-1), int64(math.MinInt32)),
			Entry("sign-extends results", uint32(0xFFFFFFFF), uint32(1), int64(-1), int64(0)),
		)
	})

	Describe("Multiply high", func() {
		DescribeTable("MulH",
			func(a, b, expected int64) {
				Expect(emu.MulH(a, b)).To(Equal(expected))
			},
			Entry("small positive", int64(3), int64(5), int64(0)),
			Entry("small negative", int64(-3), int64(5), int64(-1)),
			Entry("min squared", int64(math.MinInt64), int64(math.MinInt64), int64(1)<<62),
			Entry("max times two", int64(math.MaxInt64), int64(2), int64(0)),
		)

		It("should compute MulHU", func() {
			Expect(emu.MulHU(math.MaxUint64, math.MaxUint64)).To(Equal(uint64(math.MaxUint64 - 1)))
			Expect(emu.MulHU(1<<32, 1<<32)).To(Equal(uint64(1)))
		})

		It("should compute MulHSU", func() {
			Expect(emu.MulHSU(-1, math.MaxUint64)).To(Equal(int64(-1)))
			Expect(emu.MulHSU(2, math.MaxUint64)).To(Equal(int64(1)))
		})
	})

	Describe("Executed operations", func() {
		var (
			m    *emu.Machine
			regs *emu.RegFile
		)

		BeforeEach(func() {
			m, _ = newTestMachine(emu.WithExceptionHandler(&trap{}))
			regs = m.RegFile()
		})

		run := func(word uint32) {
			loadProgram(m, 0x100, word)
			m.OneInstruction()
		}

		DescribeTable("register-register",
			func(funct3, funct7 uint8, a, b, expected int64) {
				regs.WriteInt(1, a)
				regs.WriteInt(2, b)
				run(insts.Op(funct3, funct7, 3, 1, 2))
				Expect(regs.ReadInt(3)).To(Equal(expected))
			},
			Entry("ADD wraps", insts.AluADD, insts.Funct7Base, int64(math.MaxInt64), int64(1), int64(math.MinInt64)),
			Entry("SUB", insts.AluADD, insts.Funct7Alt, int64(5), int64(7), int64(-2)),
			Entry("SLL uses six bits", insts.AluSLL, insts.Funct7Base, int64(1), int64(65), int64(2)),
			Entry("SLT", insts.AluSLT, insts.Funct7Base, int64(-1), int64(0), int64(1)),
			Entry("SLTU", insts.AluSLTU, insts.Funct7Base, int64(-1), int64(0), int64(0)),
			Entry("XOR", insts.AluXOR, insts.Funct7Base, int64(0xF0), int64(0xFF), int64(0x0F)),
			Entry("SRL", insts.AluSR, insts.Funct7Base, int64(-16), int64(4), int64(0x0FFFFFFFFFFFFFFF)),
			Entry("SRL by zero", insts.AluSR, insts.Funct7Base, int64(-16), int64(0), int64(-16)),
			Entry("SRL by 63", insts.AluSR, insts.Funct7Base, int64(math.MinInt64), int64(63), int64(1)),
			Entry("SRA", insts.AluSR, insts.Funct7Alt, int64(-16), int64(4), int64(-1)),
			Entry("OR", insts.AluOR, insts.Funct7Base, int64(0xF0), int64(0x0F), int64(0xFF)),
			Entry("AND", insts.AluAND, insts.Funct7Base, int64(0xF0), int64(0x3C), int64(0x30)),
			Entry("MUL", insts.MulMUL, insts.Funct7MulDiv, int64(-3), int64(7), int64(-21)),
			Entry("MULHU", insts.MulMULHU, insts.Funct7MulDiv, int64(-1), int64(-1), int64(-2)),
			Entry("DIV by zero", insts.MulDIV, insts.Funct7MulDiv, int64(9), int64(0), int64(-1)),
			Entry("DIVU by zero", insts.MulDIVU, insts.Funct7MulDiv, int64(9), int64(0), int64(-1)),
			Entry("REM overflow", insts.MulREM, insts.Funct7MulDiv, int64(math.MinInt64), int64(-1), int64(0)),
			Entry("REMU by zero", insts.MulREMU, insts.Funct7MulDiv, int64(9), int64(0), int64(9)),
		)

		DescribeTable("32-bit register-register",
			func(funct3, funct7 uint8, a, b, expected int64) {
				regs.WriteInt(1, a)
				regs.WriteInt(2, b)
				run(insts.Op32(funct3, funct7, 3, 1, 2))
				Expect(regs.ReadInt(3)).To(Equal(expected))
			},
			Entry("ADDW sign-extends", insts.AluADD, insts.Funct7Base, int64(0x7FFFFFFF), int64(1), int64(math.MinInt32)),
			Entry("SUBW", insts.AluADD, insts.Funct7Alt, int64(0), int64(1), int64(-1)),
			Entry("SLLW uses five bits", insts.AluSLL, insts.Funct7Base, int64(1), int64(33), int64(2)),
			Entry("SRLW", insts.AluSR, insts.Funct7Base, int64(-16), int64(4), int64(0x0FFFFFFF)),
			Entry("SRLW by zero", insts.AluSR, insts.Funct7Base, int64(0x80000000), int64(0), int64(math.MinInt32)),
			Entry("SRAW", insts.AluSR, insts.Funct7Alt, int64(0x80000000), int64(4), int64(-0x08000000)),
			Entry("MULW", insts.MulMUL, insts.Funct7MulDiv, int64(0x10000), int64(0x10000), int64(0)),
			Entry("DIVW overflow", insts.MulDIV, insts.Funct7MulDiv, int64(math.MinInt32), int64(-1), int64(math.MinInt32)),
			Entry("DIVUW by zero", insts.MulDIVU, insts.Funct7MulDiv, int64(5), int64(0), int64(-1)),
			Entry("REMW by zero", insts.MulREM, insts.Funct7MulDiv, int64(-5), int64(0), int64(-5)),
			Entry("REMUW", insts.MulREMU, insts.Funct7MulDiv, int64(10), int64(3), int64(1)),
		)

		DescribeTable("register-immediate",
			func(word uint32, a, expected int64) {
				regs.WriteInt(1, a)
				run(word)
				Expect(regs.ReadInt(3)).To(Equal(expected))
			},
			Entry("ADDI negative", insts.ADDI(3, 1, -2), int64(1), int64(-1)),
			Entry("SLTIU compares sign-extended immediate unsigned",
				insts.EncodeI(insts.OpcodeOpImm, 3, insts.AluSLTU, 1, -1), int64(5), int64(1)),
			Entry("XORI -1 is NOT",
				insts.EncodeI(insts.OpcodeOpImm, 3, insts.AluXOR, 1, -1), int64(0), int64(-1)),
			Entry("SLLI 63",
				insts.EncodeI(insts.OpcodeOpImm, 3, insts.AluSLL, 1, 63), int64(1), int64(math.MinInt64)),
			Entry("SRLI",
				insts.EncodeI(insts.OpcodeOpImm, 3, insts.AluSR, 1, 60), int64(-1), int64(0xF)),
			Entry("SRAI",
				insts.EncodeI(insts.OpcodeOpImm, 3, insts.AluSR, 1, 0x400|60), int64(-32), int64(-1)),
			Entry("ADDIW wraps",
				insts.EncodeI(insts.OpcodeOpImm32, 3, insts.AluADD, 1, 1), int64(0x7FFFFFFF), int64(math.MinInt32)),
			Entry("SLLIW",
				insts.EncodeI(insts.OpcodeOpImm32, 3, insts.AluSLL, 1, 31), int64(1), int64(math.MinInt32)),
			Entry("SRLIW by zero sign-extends",
				insts.EncodeI(insts.OpcodeOpImm32, 3, insts.AluSR, 1, 0), int64(0xF0000000), int64(-0x10000000)),
			Entry("SRLIW",
				insts.EncodeI(insts.OpcodeOpImm32, 3, insts.AluSR, 1, 28), int64(0xF0000000), int64(0xF)),
			Entry("SRAIW",
				insts.EncodeI(insts.OpcodeOpImm32, 3, insts.AluSR, 1, 0x400|28), int64(0xF0000000), int64(-1)),
		)
	})
})
