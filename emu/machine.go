// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import (
	"bufio"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/config"
	"github.com/Kyllano/TacOS/insts"
)

// Ticker is the interrupt controller as seen by the machine: simulated time
// advances after every instruction and pending interrupts fire from there.
type Ticker interface {
	// OneTick advances simulated time by ticks and delivers every due
	// interrupt.
	OneTick(ticks uint64, user bool)

	// Halted reports whether the machine has been halted.
	Halted() bool

	// HaltStatus returns the status given to the halt request.
	HaltStatus() int

	// Now returns the current simulated time.
	Now() uint64

	// DumpState prints the pending interrupts.
	DumpState(w io.Writer)
}

// ProcessStats holds per-process execution statistics.
type ProcessStats struct {
	Name           string
	NumInstruction uint64
}

// IncrNumInstruction counts one executed user instruction.
func (p *ProcessStats) IncrNumInstruction() {
	p.NumInstruction++
}

// Machine simulates the user-mode processor: registers, physical memory
// and the MMU. The kernel runs on the host and is entered through the
// exception handler.
type Machine struct {
	regs    RegFile
	memory  *Memory
	mmu     *MMU
	decoder *insts.Decoder

	// shiftMask[i] keeps the bits a logical right shift by i preserves.
	shiftMask [64]uint64

	cfg     *config.Config
	handler ExceptionHandler
	ticker  Ticker
	process *ProcessStats

	instObserver AccessObserver
	dataObserver AccessObserver

	badVAddr        uint64
	cycles          uint64
	exceptionCounts [NumExceptionTypes]uint64

	singleStep bool
	runUntil   uint64
	debugIn    *bufio.Reader
	debugOut   io.Writer

	logger *logrus.Entry
}

// MachineOption is a functional option for configuring the Machine.
type MachineOption func(*Machine)

// WithConfig sets the memory geometry and user tick from c.
func WithConfig(c *config.Config) MachineOption {
	return func(m *Machine) {
		m.cfg = c
	}
}

// WithExceptionHandler sets the kernel entry point for exceptions.
func WithExceptionHandler(h ExceptionHandler) MachineOption {
	return func(m *Machine) {
		m.handler = h
	}
}

// WithTicker connects the machine to an interrupt controller.
func WithTicker(t Ticker) MachineOption {
	return func(m *Machine) {
		m.ticker = t
	}
}

// WithLogger sets the logger used for traces and fatal errors.
func WithLogger(l *logrus.Entry) MachineOption {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithDebugger enables single-stepping. Commands are read from in and the
// machine state is printed to out.
func WithDebugger(in io.Reader, out io.Writer) MachineOption {
	return func(m *Machine) {
		m.singleStep = true
		m.debugIn = bufio.NewReader(in)
		m.debugOut = out
	}
}

// WithInstructionObserver reports every instruction fetch to o.
func WithInstructionObserver(o AccessObserver) MachineOption {
	return func(m *Machine) {
		m.instObserver = o
	}
}

// WithDataObserver reports every load and store to o.
func WithDataObserver(o AccessObserver) MachineOption {
	return func(m *Machine) {
		m.dataObserver = o
	}
}

// NewMachine creates a machine with zeroed registers and memory.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		decoder:  insts.NewDecoder(),
		cfg:      config.Default(),
		debugOut: os.Stdout,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	m.logger = m.logger.WithField("component", "machine")

	for i := range m.shiftMask {
		m.shiftMask[i] = ^uint64(0) >> i
	}

	m.memory = NewMemory(m.cfg.NumPhysPages, m.cfg.PageSize)
	m.mmu = newMMU(m, m.memory, m.logger)
	m.mmu.SetInstructionObserver(m.instObserver)
	m.mmu.SetDataObserver(m.dataObserver)
	m.regs.Mode = SystemMode

	return m
}

// RegFile returns the machine's register file.
func (m *Machine) RegFile() *RegFile {
	return &m.regs
}

// Memory returns the machine's physical memory.
func (m *Machine) Memory() *Memory {
	return m.memory
}

// MMU returns the machine's address translator.
func (m *Machine) MMU() *MMU {
	return m.mmu
}

// Config returns the machine configuration.
func (m *Machine) Config() *config.Config {
	return m.cfg
}

// Logger returns the machine's logger.
func (m *Machine) Logger() *logrus.Entry {
	return m.logger
}

// BadVAddr returns the faulting address recorded by the last exception.
func (m *Machine) BadVAddr() uint64 {
	return m.badVAddr
}

// Cycles returns the number of instructions completed.
func (m *Machine) Cycles() uint64 {
	return m.cycles
}

// ExceptionCount returns how many exceptions of the given kind were raised.
func (m *Machine) ExceptionCount(kind ExceptionType) uint64 {
	if !kind.Valid() {
		return 0
	}
	return m.exceptionCounts[kind]
}

// SetCurrentProcess selects the statistics updated by executed
// instructions.
func (m *Machine) SetCurrentProcess(p *ProcessStats) {
	m.process = p
}

// CurrentProcess returns the statistics of the running process.
func (m *Machine) CurrentProcess() *ProcessStats {
	return m.process
}

// SetExceptionHandler replaces the kernel exception handler.
func (m *Machine) SetExceptionHandler(h ExceptionHandler) {
	m.handler = h
}

// RaiseException transfers control to the kernel because the running
// program trapped. badVAddr is the faulting address, or the return address
// for a system call.
func (m *Machine) RaiseException(kind ExceptionType, badVAddr uint64) {
	if !kind.Valid() {
		m.logger.Fatalf("internal error: bad exception number %d", int(kind))
		return
	}

	m.logger.WithField("pc", m.regs.PC).Debugf("exception: %s", kind)

	if m.handler == nil {
		m.logger.Fatalf("no handler for exception %s at pc 0x%x", kind, m.regs.PC)
		return
	}

	m.exceptionCounts[kind]++
	m.badVAddr = badVAddr
	m.regs.Mode = SystemMode
	m.handler.HandleException(m, kind)
	m.regs.Mode = UserMode
}

// Step executes one instruction in user mode and advances simulated time.
func (m *Machine) Step() {
	ticks := m.OneInstruction()
	m.regs.Mode = UserMode

	if m.ticker == nil {
		return
	}
	m.ticker.OneTick(ticks, true)

	if m.singleStep && m.runUntil <= m.ticker.Now() {
		m.Debugger()
	}
}

// Run executes the user program until the interrupt controller halts the
// machine, and returns the halt status.
func (m *Machine) Run() int {
	if m.ticker == nil {
		m.logger.Fatal("cannot run without an interrupt controller")
		return -1
	}

	m.regs.Mode = UserMode
	for !m.ticker.Halted() {
		m.Step()
	}

	return m.ticker.HaltStatus()
}

// outcome tells OneInstruction how an executed instruction ended.
type outcome uint8

const (
	committed outcome = iota // PC moves to the next instruction
	aborted                  // exception delivered, the instruction restarts
	trapped                  // PC already committed before a trap
)

// OneInstruction fetches, decodes and executes the instruction at PC. It
// returns the simulated time the instruction took, or 0 when it was
// aborted by an exception.
func (m *Machine) OneInstruction() uint64 {
	pc := m.regs.PC

	word, ok := m.mmu.Fetch(pc)
	if !ok {
		return 0
	}

	inst := m.decoder.Decode(word)

	if m.process != nil {
		m.process.IncrNumInstruction()
	}

	if m.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		entry := m.logger.WithField("pc", pc)
		if m.process != nil {
			entry = entry.WithField("process", m.process.Name)
		}
		entry.Debug(inst.Disassemble(pc))
	}

	next := pc + 4
	var o outcome
	switch inst.Class {
	case insts.ClassLUI:
		m.regs.WriteInt(inst.Rd, inst.ImmUSigned)
	case insts.ClassAUIPC:
		m.regs.WriteInt(inst.Rd, int64(pc)+inst.ImmUSigned)
	case insts.ClassJAL, insts.ClassJALR, insts.ClassBranch:
		next, o = m.executeBranch(inst, pc)
	case insts.ClassLoad:
		o = m.executeLoad(inst)
	case insts.ClassStore:
		o = m.executeStore(inst)
	case insts.ClassLoadFP:
		o = m.executeLoadFP(inst)
	case insts.ClassStoreFP:
		o = m.executeStoreFP(inst)
	case insts.ClassOpImm:
		o = m.executeOpImm(inst)
	case insts.ClassOpImm32:
		o = m.executeOpImm32(inst)
	case insts.ClassOp:
		o = m.executeOp(inst)
	case insts.ClassOp32:
		o = m.executeOp32(inst)
	case insts.ClassFMAdd, insts.ClassFMSub, insts.ClassFNMSub, insts.ClassFNMAdd:
		o = m.executeFMA(inst)
	case insts.ClassOpFP:
		o = m.executeOpFP(inst)
	case insts.ClassMiscMem:
		// FENCE and FENCE.I order nothing on a single in-order hart.
		if inst.Funct3 > 1 {
			o = m.unknown(inst)
		}
	case insts.ClassSystem:
		m.regs.PC = next
		m.RaiseException(SyscallException, next)
		o = trapped
	default:
		o = m.unknown(inst)
	}

	if o == aborted {
		return 0
	}
	if o == committed {
		m.regs.PC = next
	}

	m.regs.X[0] = 0
	m.cycles++

	return m.cfg.UserTick
}

// unknown stops the simulator on an encoding it does not implement.
func (m *Machine) unknown(inst insts.Instruction) outcome {
	m.logger.Fatalf(
		"instruction not implemented: 0x%08x (%s, funct3 %d, funct7 0x%x) at pc 0x%x",
		inst.Value, inst.Class, inst.Funct3, inst.Funct7, m.regs.PC)
	return aborted
}
