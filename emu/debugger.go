// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const debuggerHelp = `Machine commands:
    <return>  execute one instruction
    <number>  run until the given clock cycle number
    c         run until completion
    ?         print help message
`

// Debugger prints the machine state and reads one command. It is entered
// between instructions while single-stepping.
func (m *Machine) Debugger() {
	if m.ticker != nil {
		m.ticker.DumpState(m.debugOut)
	}
	m.DumpState(m.debugOut)

	var now uint64
	if m.ticker != nil {
		now = m.ticker.Now()
	}
	fmt.Fprintf(m.debugOut, "At cycle %d\n", now)

	if m.debugIn == nil {
		m.singleStep = false
		return
	}

	line, err := m.debugIn.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		// No more commands: run to completion.
		m.singleStep = false
		return
	}
	m.debugCommand(strings.TrimSpace(line))
}

func (m *Machine) debugCommand(cmd string) {
	if n, err := strconv.ParseUint(cmd, 10, 64); err == nil {
		m.runUntil = n
		return
	}

	m.runUntil = 0
	switch {
	case cmd == "":
	case cmd[0] == 'c':
		m.singleStep = false
	case cmd[0] == '?':
		fmt.Fprint(m.debugOut, debuggerHelp)
	}
}

// SingleStep reports whether the debugger is entered after each
// instruction.
func (m *Machine) SingleStep() bool {
	return m.singleStep
}

// DumpState prints the user program's CPU state.
func (m *Machine) DumpState(w io.Writer) {
	fmt.Fprintf(w, "Machine registers:\n")
	fmt.Fprintf(w, "\tPC:\t0x%x\n", m.regs.PC)
	for i, v := range m.regs.X {
		switch i {
		case 1:
			fmt.Fprintf(w, "\tRA(%d):\t0x%x\n", i, uint64(v))
		case 2:
			fmt.Fprintf(w, "\tSP(%d):\t0x%x\n", i, uint64(v))
		default:
			fmt.Fprintf(w, "\t%d:\t0x%x\n", i, uint64(v))
		}
	}
	fmt.Fprintf(w, "Float registers:\n")
	for i, v := range m.regs.F {
		fmt.Fprintf(w, "\t%d:\t0x%x\n", i, v)
	}
}
