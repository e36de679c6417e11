// Package interrupt emulates the interrupt controller of the simulated
// machine: a simulated clock, the queue of pending device interrupts and the
// interrupt enable level.
//
// Devices schedule an interrupt some number of ticks in the future. The
// execution core calls OneTick after every user instruction; the kernel
// calls SetStatus when it re-enables interrupts and Idle when nothing is
// ready to run. Every interrupt whose time has come fires from there.
package interrupt

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/config"
)

// Level is the interrupt enable level.
type Level uint8

// Interrupt levels.
const (
	Off Level = iota
	On
)

func (l Level) String() string {
	if l == On {
		return "on"
	}
	return "off"
}

// Kind identifies the device that raised an interrupt.
type Kind uint8

// Interrupt kinds.
const (
	TimerInt Kind = iota
	DiskInt
	SwapDiskInt
	ConsoleWriteInt
	ConsoleReadInt
)

var kindNames = [...]string{"timer", "disk", "swap disk", "console write", "console read"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Stats holds the simulated time accounting.
type Stats struct {
	TotalTicks  uint64
	UserTicks   uint64
	SystemTicks uint64
	IdleTicks   uint64
}

// PendingInterrupt is an interrupt scheduled to fire at When.
type PendingInterrupt struct {
	Handler func()
	When    uint64
	Kind    Kind
}

// tickEvent gathers every interrupt due at the same tick, in scheduling
// order.
type tickEvent struct {
	*sim.EventBase
	when    uint64
	pending []*PendingInterrupt
}

// Interrupt is the interrupt controller.
type Interrupt struct {
	mu sync.Mutex

	queue  sim.EventQueue
	byTick map[uint64]*tickEvent
	count  int

	level         Level
	inHandler     bool
	idle          bool
	yieldOnReturn bool

	halted     bool
	haltStatus int

	stats      Stats
	systemTick uint64
	onYield    func()

	logger *logrus.Entry
}

// Option is a functional option for configuring the Interrupt controller.
type Option func(*Interrupt)

// WithConfig takes the system tick from c.
func WithConfig(c *config.Config) Option {
	return func(i *Interrupt) {
		i.systemTick = c.SystemTick
	}
}

// WithLogger sets the logger used for interrupt traces.
func WithLogger(l *logrus.Entry) Option {
	return func(i *Interrupt) {
		i.logger = l
	}
}

// WithYieldHandler sets the function called when an interrupt handler
// asked for a context switch. It typically yields the current thread.
func WithYieldHandler(f func()) Option {
	return func(i *Interrupt) {
		i.onYield = f
	}
}

// New creates an interrupt controller with interrupts disabled.
func New(opts ...Option) *Interrupt {
	i := &Interrupt{
		queue:      sim.NewEventQueue(),
		byTick:     make(map[uint64]*tickEvent),
		level:      Off,
		systemTick: config.Default().SystemTick,
	}

	for _, opt := range opts {
		opt(i)
	}

	if i.logger == nil {
		i.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	i.logger = i.logger.WithField("component", "interrupt")

	return i
}

// Schedule arranges for handler to be called fromNow ticks in the future.
// Interrupts due at the same tick fire in the order they were scheduled.
func (i *Interrupt) Schedule(handler func(), fromNow uint64, kind Kind) {
	if fromNow == 0 {
		panic("interrupt: scheduling an interrupt with no delay")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	when := i.stats.TotalTicks + fromNow
	p := &PendingInterrupt{Handler: handler, When: when, Kind: kind}

	ev, ok := i.byTick[when]
	if !ok {
		ev = &tickEvent{when: when}
		ev.EventBase = sim.NewEventBase(sim.VTimeInSec(when), i)
		i.byTick[when] = ev
		i.queue.Push(ev)
	}
	ev.pending = append(ev.pending, p)
	i.count++

	i.logger.WithFields(logrus.Fields{
		"kind": kind.String(),
		"when": when,
		"now":  i.stats.TotalTicks,
	}).Debug("scheduling interrupt")
}

// SetStatus changes the interrupt level and returns the previous one.
// Re-enabling interrupts advances time by one system tick, which may fire
// pending interrupts.
func (i *Interrupt) SetStatus(level Level) Level {
	i.mu.Lock()
	if level == On && i.inHandler {
		i.mu.Unlock()
		panic("interrupt: handlers cannot enable interrupts")
	}
	old := i.level
	i.level = level
	tick := i.systemTick
	i.mu.Unlock()

	if old == Off && level == On {
		i.OneTick(tick, false)
	}
	return old
}

// Status returns the current interrupt level.
func (i *Interrupt) Status() Level {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.level
}

// OneTick advances simulated time by ticks and fires every interrupt that
// has become due. user selects whether the time is charged to user or
// system mode.
func (i *Interrupt) OneTick(ticks uint64, user bool) {
	i.mu.Lock()
	i.stats.TotalTicks += ticks
	if user {
		i.stats.UserTicks += ticks
	} else {
		i.stats.SystemTicks += ticks
	}
	old := i.level
	i.level = Off
	i.mu.Unlock()

	for i.checkIfDue(false) {
	}

	i.mu.Lock()
	i.level = old
	yield := i.yieldOnReturn
	i.yieldOnReturn = false
	onYield := i.onYield
	i.mu.Unlock()

	if yield && onYield != nil {
		i.logger.Debug("yielding on return from interrupt")
		onYield()
	}
}

// checkIfDue fires the next pending interrupt if it is due. With
// advanceClock it first moves the clock forward to that interrupt. It
// reports whether an interrupt fired.
func (i *Interrupt) checkIfDue(advanceClock bool) bool {
	i.mu.Lock()

	if i.queue.Len() == 0 {
		i.mu.Unlock()
		return false
	}

	ev := i.queue.Peek().(*tickEvent)
	next := ev.pending[0]

	if advanceClock && next.Kind == TimerInt && i.count == 1 {
		// Only the timer is left: idling forever would be pointless.
		i.mu.Unlock()
		return false
	}

	if next.When > i.stats.TotalTicks {
		if !advanceClock {
			i.mu.Unlock()
			return false
		}
		i.stats.IdleTicks += next.When - i.stats.TotalTicks
		i.stats.TotalTicks = next.When
	}
	i.mu.Unlock()

	if err := ev.Handler().Handle(ev); err != nil {
		i.logger.WithError(err).Error("interrupt handler failed")
	}
	return true
}

// Handle fires the oldest interrupt of a due tick event.
func (i *Interrupt) Handle(e sim.Event) error {
	ev, ok := e.(*tickEvent)
	if !ok {
		return fmt.Errorf("interrupt: unexpected event %T", e)
	}

	i.mu.Lock()
	p := ev.pending[0]
	ev.pending = ev.pending[1:]
	if len(ev.pending) == 0 {
		i.queue.Pop()
		delete(i.byTick, ev.when)
	}
	i.count--
	i.inHandler = true
	i.logger.WithFields(logrus.Fields{
		"kind": p.Kind.String(),
		"now":  i.stats.TotalTicks,
	}).Debug("invoking interrupt handler")
	i.mu.Unlock()

	p.Handler()

	i.mu.Lock()
	i.inHandler = false
	i.mu.Unlock()

	return nil
}

// Idle is called by the kernel when nothing is ready to run. It advances
// the clock to the next pending interrupt and fires it. With nothing left
// to wait for but the timer, the machine halts.
func (i *Interrupt) Idle() {
	i.mu.Lock()
	i.idle = true
	old := i.level
	i.level = Off
	i.mu.Unlock()

	i.logger.Debug("machine idling")

	if i.checkIfDue(true) {
		for i.checkIfDue(false) {
		}
		i.mu.Lock()
		i.yieldOnReturn = false
		i.idle = false
		i.level = old
		i.mu.Unlock()
		return
	}

	i.logger.Info("machine idle, no interrupts to do")
	i.mu.Lock()
	i.idle = false
	i.level = old
	i.mu.Unlock()
	i.Halt(0)
}

// Idling reports whether the machine is waiting in Idle.
func (i *Interrupt) Idling() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.idle
}

// YieldOnReturn asks for a context switch once the running interrupt
// handler returns. It may only be called from a handler.
func (i *Interrupt) YieldOnReturn() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.inHandler {
		panic("interrupt: yield on return outside an interrupt handler")
	}
	i.yieldOnReturn = true
}

// InHandler reports whether an interrupt handler is running.
func (i *Interrupt) InHandler() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inHandler
}

// Halt stops the machine with the given status.
func (i *Interrupt) Halt(status int) {
	i.mu.Lock()
	i.halted = true
	i.haltStatus = status
	stats := i.stats
	i.mu.Unlock()

	i.logger.WithFields(logrus.Fields{
		"status":       status,
		"total_ticks":  stats.TotalTicks,
		"user_ticks":   stats.UserTicks,
		"system_ticks": stats.SystemTicks,
		"idle_ticks":   stats.IdleTicks,
	}).Info("machine halting")
}

// Halted reports whether Halt has been called.
func (i *Interrupt) Halted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.halted
}

// HaltStatus returns the status passed to Halt.
func (i *Interrupt) HaltStatus() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.haltStatus
}

// Now returns the current simulated time in ticks.
func (i *Interrupt) Now() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats.TotalTicks
}

// Stats returns a snapshot of the time accounting.
func (i *Interrupt) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats
}

// Pending returns the scheduled interrupts in firing order.
func (i *Interrupt) Pending() []PendingInterrupt {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]PendingInterrupt, 0, i.count)
	for _, when := range slices.Sorted(maps.Keys(i.byTick)) {
		for _, p := range i.byTick[when].pending {
			out = append(out, *p)
		}
	}
	return out
}

// DumpState prints the clock and the pending interrupts.
func (i *Interrupt) DumpState(w io.Writer) {
	pending := i.Pending()

	fmt.Fprintf(w, "Time: %d, interrupts %s\n", i.Now(), i.Status())
	fmt.Fprintf(w, "Pending interrupts:\n")
	for _, p := range pending {
		fmt.Fprintf(w, "\tInterrupt %s, scheduled at %d\n", p.Kind, p.When)
	}
	fmt.Fprintf(w, "End of pending interrupts\n")

	if i.logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		i.logger.Trace(spew.Sdump(pending))
	}
}
