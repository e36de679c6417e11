package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/config"
	"github.com/Kyllano/TacOS/disk"
	"github.com/Kyllano/TacOS/drivers"
	"github.com/Kyllano/TacOS/emu"
	"github.com/Kyllano/TacOS/interrupt"
	"github.com/Kyllano/TacOS/loader"
	"github.com/Kyllano/TacOS/timing/cache"
	"github.com/Kyllano/TacOS/trace"
)

// System call numbers, passed in a7.
const (
	sysHalt        = 0
	sysExit        = 1
	sysWrite       = 2
	sysReadSector  = 3
	sysWriteSector = 4
	sysTime        = 5
	sysReadSwap    = 6
	sysWriteSwap   = 7
)

// Argument registers of the calling convention.
const (
	regA0 = 10
	regA1 = 11
	regA7 = 17
)

// options selects the optional parts of a system.
type options struct {
	debugFlags    string
	singleStep    bool
	randomSeed    uint64
	profileCaches bool

	in     io.Reader
	out    io.Writer
	logOut io.Writer
	exit   func(int)
}

// system wires the machine, its devices and a minimal kernel able to run a
// single user program.
type system struct {
	cfg     *config.Config
	tracer  *trace.Tracer
	intr    *interrupt.Interrupt
	machine *emu.Machine
	disk    *disk.Disk
	driver  *drivers.DiskDriver
	swap    *disk.Disk
	swapDrv *drivers.DiskDriver
	frames  *loader.FrameAllocator
	space   *loader.AddrSpace

	icache *cache.Cache
	dcache *cache.Cache

	out    io.Writer
	logger *logrus.Entry
}

func newSystem(cfg *config.Config, opts options) (*system, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &system{
		cfg:    cfg,
		tracer: trace.New(opts.logOut, opts.debugFlags),
		out:    opts.out,
	}
	if opts.exit != nil {
		s.tracer.SetExitFunc(opts.exit)
	}
	s.logger = s.tracer.Entry(trace.Machine).WithField("component", "kernel")

	s.intr = interrupt.New(
		interrupt.WithConfig(cfg),
		interrupt.WithLogger(s.tracer.Entry(trace.Interrupt)),
		interrupt.WithYieldHandler(s.yield),
	)

	d, err := disk.Open(cfg.DiskFile, s.intr, func() { s.driver.RequestDone() },
		disk.WithConfig(cfg),
		disk.WithLogger(s.tracer.Entry(trace.Disk)))
	if err != nil {
		return nil, err
	}
	s.disk = d
	s.driver = drivers.NewDiskDriver(d,
		drivers.WithIdle(s.intr.Idle),
		drivers.WithLogger(s.tracer.Entry(trace.Disk)))

	swap, err := disk.Open(cfg.SwapFile, s.intr, func() { s.swapDrv.RequestDone() },
		disk.WithConfig(cfg),
		disk.WithInterruptKind(interrupt.SwapDiskInt),
		disk.WithLogger(s.tracer.Entry(trace.Disk).WithField("disk", "swap")))
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to open swap disk: %w", err)
	}
	s.swap = swap
	s.swapDrv = drivers.NewDiskDriver(swap,
		drivers.WithIdle(s.intr.Idle),
		drivers.WithLogger(s.tracer.Entry(trace.Disk).WithField("disk", "swap")))

	machineOpts := []emu.MachineOption{
		emu.WithConfig(cfg),
		emu.WithExceptionHandler(s),
		emu.WithTicker(s.intr),
		emu.WithLogger(s.tracer.Entry(trace.Machine)),
	}
	if opts.profileCaches {
		s.icache = cache.New("L1I", cache.DefaultL1IConfig())
		s.dcache = cache.New("L1D", cache.DefaultL1DConfig())
		machineOpts = append(machineOpts,
			emu.WithInstructionObserver(s.icache),
			emu.WithDataObserver(s.dcache))
	}
	if opts.singleStep {
		machineOpts = append(machineOpts, emu.WithDebugger(opts.in, opts.out))
	}
	s.machine = emu.NewMachine(machineOpts...)

	s.frames = loader.NewFrameAllocator(cfg.NumPhysPages)

	if opts.randomSeed != 0 {
		interrupt.NewTimer(s.intr, s.intr.YieldOnReturn, cfg.TimerTicks,
			interrupt.WithRandomDelays(opts.randomSeed))
	}

	return s, nil
}

// load builds the address space of prog and makes it current.
func (s *system) load(prog *loader.Program, name string) error {
	space, err := loader.NewAddrSpace(prog, s.machine.Memory(), s.frames, s.cfg.MaxVirtPages,
		loader.WithLogger(s.tracer.Entry(trace.AddrSpace)))
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}

	s.space = space
	space.Install(s.machine)
	s.machine.SetCurrentProcess(&emu.ProcessStats{Name: name})
	return nil
}

// run executes the loaded program until it halts and returns its status.
func (s *system) run() int {
	s.intr.SetStatus(interrupt.On)
	return s.machine.Run()
}

func (s *system) close() error {
	if s.space != nil {
		s.space.Release(s.frames)
		s.space = nil
	}
	swapErr := s.swap.Close()
	if err := s.disk.Close(); err != nil {
		return err
	}
	return swapErr
}

// yield is called when the timer asked for a context switch. With a single
// program there is nothing else to run.
func (s *system) yield() {
	s.logger.Debug("time slice expired")
}

// HandleException is the kernel entry point.
func (s *system) HandleException(m *emu.Machine, kind emu.ExceptionType) {
	if kind != emu.SyscallException {
		s.logger.WithFields(logrus.Fields{
			"exception": kind.String(),
			"vaddr":     fmt.Sprintf("0x%x", m.BadVAddr()),
			"pc":        fmt.Sprintf("0x%x", m.RegFile().PC),
		}).Error("unexpected user mode exception")
		s.intr.Halt(1)
		return
	}

	regs := m.RegFile()
	switch num := regs.ReadInt(regA7); num {
	case sysHalt:
		s.logger.Debug("shutdown, initiated by user program")
		s.intr.Halt(0)
	case sysExit:
		s.intr.Halt(int(regs.ReadInt(regA0)))
	case sysWrite:
		regs.WriteInt(regA0, s.write(m, uint64(regs.ReadInt(regA0)), regs.ReadInt(regA1)))
	case sysReadSector:
		regs.WriteInt(regA0, s.readSector(m, s.driver, regs.ReadInt(regA0), uint64(regs.ReadInt(regA1))))
	case sysWriteSector:
		regs.WriteInt(regA0, s.writeSector(m, s.driver, regs.ReadInt(regA0), uint64(regs.ReadInt(regA1))))
	case sysReadSwap:
		regs.WriteInt(regA0, s.readSector(m, s.swapDrv, regs.ReadInt(regA0), uint64(regs.ReadInt(regA1))))
	case sysWriteSwap:
		regs.WriteInt(regA0, s.writeSector(m, s.swapDrv, regs.ReadInt(regA0), uint64(regs.ReadInt(regA1))))
	case sysTime:
		regs.WriteInt(regA0, int64(s.intr.Now()))
	default:
		s.logger.WithField("syscall", num).Error("unknown system call")
		regs.WriteInt(regA0, -1)
	}
}

func (s *system) copyIn(m *emu.Machine, vaddr uint64, buf []byte) bool {
	for i := range buf {
		v, ok := m.MMU().ReadMem(vaddr+uint64(i), 1)
		if !ok {
			return false
		}
		buf[i] = byte(v)
	}
	return true
}

func (s *system) copyOut(m *emu.Machine, vaddr uint64, buf []byte) bool {
	for i, b := range buf {
		if !m.MMU().WriteMem(vaddr+uint64(i), 1, uint64(b)) {
			return false
		}
	}
	return true
}

// write copies the guest buffer to the console one page at a time. A size
// larger than the address space, or a fault, fails the call with -1.
func (s *system) write(m *emu.Machine, vaddr uint64, size int64) int64 {
	if size < 0 || size > int64(s.cfg.MaxVirtPages)*int64(s.cfg.PageSize) {
		return -1
	}

	page := make([]byte, s.cfg.PageSize)
	var done int64
	for done < size {
		buf := page[:min(size-done, int64(len(page)))]
		if !s.copyIn(m, vaddr+uint64(done), buf) {
			return -1
		}
		n, err := s.out.Write(buf)
		done += int64(n)
		if err != nil {
			s.logger.WithError(err).Warn("console write failed")
			break
		}
	}
	return done
}

func (s *system) validSector(sector int64) bool {
	return sector >= 0 && sector < int64(s.cfg.NumSectors())
}

func (s *system) readSector(m *emu.Machine, drv *drivers.DiskDriver, sector int64, vaddr uint64) int64 {
	if !s.validSector(sector) {
		return -1
	}
	buf := make([]byte, s.cfg.SectorSize)
	drv.ReadSector(int(sector), buf)
	if !s.copyOut(m, vaddr, buf) {
		return -1
	}
	return 0
}

func (s *system) writeSector(m *emu.Machine, drv *drivers.DiskDriver, sector int64, vaddr uint64) int64 {
	if !s.validSector(sector) {
		return -1
	}
	buf := make([]byte, s.cfg.SectorSize)
	if !s.copyIn(m, vaddr, buf) {
		return -1
	}
	drv.WriteSector(int(sector), buf)
	return 0
}

// report prints the statistics gathered during the run.
func (s *system) report(w io.Writer) {
	stats := s.intr.Stats()
	fmt.Fprintf(w, "Ticks: total %d, idle %d, system %d, user %d\n",
		stats.TotalTicks, stats.IdleTicks, stats.SystemTicks, stats.UserTicks)
	fmt.Fprintf(w, "Wall time: %d ns\n", s.cfg.TicksToNanos(stats.TotalTicks))

	if p := s.machine.CurrentProcess(); p != nil {
		fmt.Fprintf(w, "Instructions: %d (%s)\n", p.NumInstruction, p.Name)
	}

	ds := s.disk.Stats()
	fmt.Fprintf(w, "Disk I/O: reads %d, writes %d\n", ds.Reads, ds.Writes)
	ss := s.swap.Stats()
	fmt.Fprintf(w, "Swap I/O: reads %d, writes %d\n", ss.Reads, ss.Writes)

	for kind := emu.SyscallException; kind < emu.NumExceptionTypes; kind++ {
		if n := s.machine.ExceptionCount(kind); n > 0 {
			fmt.Fprintf(w, "Exceptions: %s %d\n", kind, n)
		}
	}

	if s.icache != nil {
		s.icache.Report(w)
		s.dcache.Report(w)
	}
}
