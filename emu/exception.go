// Package emu provides functional RISC-V emulation for the simulated machine.
package emu

// ExceptionType identifies why the processor trapped into the kernel.
type ExceptionType int

// Exception kinds. The ordinals are part of the kernel interface.
const (
	NoException           ExceptionType = iota // Everything ok
	SyscallException                           // Program executed a system call
	PageFaultException                         // No valid translation found
	ReadOnlyException                          // Write attempted to a read-only page
	BusErrorException                          // Translation resulted in an invalid physical address
	AddressErrorException                      // Unaligned reference or one past the end of the address space
	OverflowException                          // Integer overflow in add or sub
	IllegalInstrException                      // Unimplemented or reserved instruction

	NumExceptionTypes
)

var exceptionNames = [NumExceptionTypes]string{
	"no exception",
	"syscall",
	"page fault",
	"read-only",
	"bus error",
	"address error",
	"overflow",
	"illegal instruction",
}

func (e ExceptionType) String() string {
	if e.Valid() {
		return exceptionNames[e]
	}
	return "unknown exception"
}

// Valid reports whether e belongs to the exception taxonomy.
func (e ExceptionType) Valid() bool {
	return e >= 0 && e < NumExceptionTypes
}

// ExceptionHandler is the kernel entry point for exceptions. It is called
// synchronously in system mode; the machine does not proceed until it
// returns.
type ExceptionHandler interface {
	HandleException(m *Machine, kind ExceptionType)
}

// ExceptionHandlerFunc adapts a function to the ExceptionHandler interface.
type ExceptionHandlerFunc func(m *Machine, kind ExceptionType)

// HandleException calls f(m, kind).
func (f ExceptionHandlerFunc) HandleException(m *Machine, kind ExceptionType) {
	f(m, kind)
}
