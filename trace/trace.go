// Package trace maps the classic debug flag string of the educational
// kernel onto logrus loggers.
//
// Each character of the flag string enables debug traces of one part of
// the system; "+" enables them all. A component asks for its entry with
// Entry and logs at Debug level: the line is printed only when the
// component's flag is on. Messages at Info level and above always print.
package trace

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Debug flags.
const (
	All       = '+'
	Machine   = 'm'
	Interrupt = 'i'
	Disk      = 'd'
	AddrSpace = 'a'
	// Verbose raises enabled components to Trace level, which adds memory
	// and state dumps.
	Verbose = 'v'
)

// Tracer hands out per-component log entries.
type Tracer struct {
	flags   string
	enabled *logrus.Logger
	quiet   *logrus.Logger
}

// New creates a Tracer writing to out with the given flag string.
func New(out io.Writer, flags string) *Tracer {
	t := &Tracer{
		flags:   flags,
		enabled: newLogger(out),
		quiet:   newLogger(out),
	}

	t.enabled.SetLevel(logrus.DebugLevel)
	if strings.ContainsRune(flags, Verbose) {
		t.enabled.SetLevel(logrus.TraceLevel)
	}
	t.quiet.SetLevel(logrus.InfoLevel)

	return t
}

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.Out = out
	l.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	}
	return l
}

// Enabled reports whether traces for flag are on.
func (t *Tracer) Enabled(flag rune) bool {
	if flag == All {
		return strings.ContainsRune(t.flags, All)
	}
	return strings.ContainsRune(t.flags, All) || strings.ContainsRune(t.flags, flag)
}

// Entry returns a log entry that prints Debug messages only when flag is
// enabled.
func (t *Tracer) Entry(flag rune) *logrus.Entry {
	if t.Enabled(flag) {
		return logrus.NewEntry(t.enabled)
	}
	return logrus.NewEntry(t.quiet)
}

// SetExitFunc replaces the function called by Fatal on every logger
// handed out.
func (t *Tracer) SetExitFunc(f func(int)) {
	t.enabled.ExitFunc = f
	t.quiet.ExitFunc = f
}
