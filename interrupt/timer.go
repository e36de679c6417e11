package interrupt

import (
	"math/rand/v2"
)

// Timer is the hardware timer: it interrupts the processor every period
// ticks, or after a random delay when randomized.
type Timer struct {
	intr    *Interrupt
	handler func()
	period  uint64
	rng     *rand.Rand
	stopped bool
}

// TimerOption is a functional option for configuring a Timer.
type TimerOption func(*Timer)

// WithRandomDelays makes the delay between two timer interrupts random in
// [1, 2*period], seeded for reproducibility.
func WithRandomDelays(seed uint64) TimerOption {
	return func(t *Timer) {
		t.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// NewTimer starts a timer that calls handler from interrupt context every
// period ticks. A handler usually calls YieldOnReturn to time-slice
// threads.
func NewTimer(intr *Interrupt, handler func(), period uint64, opts ...TimerOption) *Timer {
	t := &Timer{
		intr:    intr,
		handler: handler,
		period:  period,
	}

	for _, opt := range opts {
		opt(t)
	}

	intr.Schedule(t.fire, t.nextDelay(), TimerInt)
	return t
}

// Stop keeps the timer from re-arming after its next interrupt.
func (t *Timer) Stop() {
	t.stopped = true
}

func (t *Timer) nextDelay() uint64 {
	if t.rng != nil {
		return 1 + t.rng.Uint64N(2*t.period)
	}
	return t.period
}

func (t *Timer) fire() {
	if t.stopped {
		return
	}
	t.intr.Schedule(t.fire, t.nextDelay(), TimerInt)
	if t.handler != nil {
		t.handler()
	}
}
