package gate

import (
	"sync/atomic"

	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/pic"
	"github.com/WebFirstLanguage/wflos/kernel/segment"
	"github.com/WebFirstLanguage/wflos/kernel/sync"
)

// ExceptionHandler handles a CPU exception. Changes to regs are restored into
// the CPU when the handler returns and the interrupted code resumes.
type ExceptionHandler func(regs *Registers)

// DeviceHandler services a device interrupt. The dispatcher acknowledges the
// interrupt line after the handler returns, whether or not it reports an
// error.
type DeviceHandler func() *kernel.Error

type bindingKind uint8

const (
	unbound bindingKind = iota
	boundException
	boundDevice
)

// binding describes what runs when a vector is raised.
type binding struct {
	kind      bindingKind
	line      uint8
	exception ExceptionHandler
	device    DeviceHandler
}

// vectorState is the vector table used by the CPU together with the binding
// for each of its entries.
type vectorState struct {
	table    VectorTable
	bindings [VectorCount]binding
}

// bind writes the vector table entry before publishing the binding.
func (s *vectorState) bind(vector, ist uint8, b binding) *kernel.Error {
	if err := s.table.Install(int(vector), entryAddressFn(vector), 0, ist); err != nil {
		return err
	}

	s.bindings[vector] = b
	return nil
}

var (
	// ErrNotException is returned when binding an exception handler to a
	// vector outside the CPU exception range.
	ErrNotException = &kernel.Error{Module: "gate", Message: "exception handlers can only be bound to vectors 0-31"}

	// ErrUnhandledException is the fatal error raised by the default
	// exception policy.
	ErrUnhandledException = &kernel.Error{Module: "gate", Message: "unhandled exception"}

	// ErrUnboundVector is the fatal error raised when a vector without a
	// handler is dispatched.
	ErrUnboundVector = &kernel.Error{Module: "gate", Message: "interrupt raised on a vector without a handler"}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	panicFn        = kfmt.Panic
	readCR2Fn      = cpu.ReadCR2
	acknowledgeFn  = pic.Acknowledge
	entryAddressFn = entryAddress

	// vectors is read by dispatchInterrupt so writers must keep interrupts
	// masked. Device drivers may bind their lines after the table has been
	// loaded.
	vectors sync.IRQGuarded[vectorState]

	counters     [VectorCount]uint64
	deviceErrors [VectorCount]uint64

	faultDump = kfmt.PrefixWriter{Prefix: []byte("[gate] ")}
)

// HandleException binds handler to CPU exception vector. ist selects the
// interrupt stack the handler runs on (0 = the interrupted stack).
func HandleException(vector, ist uint8, handler ExceptionHandler) *kernel.Error {
	if vector >= ExceptionCount {
		return ErrNotException
	}

	if handler == nil {
		return ErrNilHandler
	}

	return bind(vector, ist, binding{kind: boundException, exception: handler})
}

// HandleIRQ binds handler to the vector raised by interrupt controller line.
// The line itself is not unmasked.
func HandleIRQ(line uint8, handler DeviceHandler) *kernel.Error {
	if line >= pic.LineCount {
		return pic.ErrInvalidLine
	}

	if handler == nil {
		return ErrNilHandler
	}

	return bind(pic.Vector(line), 0, binding{kind: boundDevice, line: line, device: handler})
}

func bind(vector, ist uint8, b binding) *kernel.Error {
	guard := vectors.Lock()
	defer guard.Release()

	return guard.Value().bind(vector, ist, b)
}

// lookupBinding returns a copy of the binding for vector. Handlers run
// without the guard held.
func lookupBinding(vector uint8) binding {
	guard := vectors.Lock()
	defer guard.Release()

	return guard.Value().bindings[vector]
}

// dispatchInterrupt is invoked by the gate entry stubs after saving the
// interrupted register state.
func dispatchInterrupt(regs *Registers) {
	vector := uint8(regs.Vector)
	atomic.AddUint64(&counters[vector], 1)

	b := lookupBinding(vector)
	switch b.kind {
	case boundException:
		b.exception(regs)
	case boundDevice:
		err := b.device()

		// The line stays blocked until acknowledged so this must happen
		// even if the handler failed.
		acknowledgeFn(b.line)

		if err != nil {
			atomic.AddUint64(&deviceErrors[vector], 1)
			kfmt.Printf("[gate] irq %d handler failed: [%s] %s\n", b.line, err.Module, err.Message)
		}
	default:
		fatal(regs, ErrUnboundVector)
	}
}

// DefaultExceptionHandler reports the exception and halts the CPU. It is
// bound to every exception vector by Init.
func DefaultExceptionHandler(regs *Registers) {
	fatal(regs, ErrUnhandledException)
}

func fatal(regs *Registers, err *kernel.Error) {
	vector := uint8(regs.Vector)

	var faultAddr uint64
	hasAddr := vector == PageFaultException
	if hasAddr {
		faultAddr = readCR2Fn()
	}

	ReportFault(vector, regs.ErrorCode, faultAddr, hasAddr)
	faultDump.Sink = kfmt.Output()
	regs.DumpTo(&faultDump)
	panicFn(err)
}

// ReportFault writes a description of a fatal exception to the kernel log.
// The fault address is only printed when hasAddr is true.
func ReportFault(vector uint8, errorCode, faultAddr uint64, hasAddr bool) {
	kfmt.Printf("[gate] unhandled exception %d (%s) error code 0x%x\n", vector, ExceptionName(vector), errorCode)
	if hasAddr {
		kfmt.Printf("[gate] fault address: 0x%16x\n", faultAddr)
	}
}

// Count returns the number of times vector has been raised.
func Count(vector uint8) uint64 {
	return atomic.LoadUint64(&counters[vector])
}

// DeviceErrors returns the number of times the device handler bound to
// vector reported an error.
func DeviceErrors(vector uint8) uint64 {
	return atomic.LoadUint64(&deviceErrors[vector])
}

// Bound returns true if a handler is bound to vector.
func Bound(vector uint8) bool {
	return lookupBinding(vector).kind != unbound
}

// Init builds the vector table, binds the default policy to every CPU
// exception and loads the table. The double fault handler runs on its own
// interrupt stack since the fault may be caused by an unusable stack. The
// segment table must already be loaded.
func Init() *kernel.Error {
	if err := loadDefaultVectors(); err != nil {
		return err
	}

	kfmt.Printf("[gate] vector table loaded; %d exception vectors bound\n", ExceptionCount)
	return nil
}

// loadDefaultVectors resets the vector table, binds the default exception
// policy and loads the table while holding the vector guard.
func loadDefaultVectors() *kernel.Error {
	guard := vectors.Lock()
	defer guard.Release()

	state := guard.Value()
	*state = vectorState{table: BuildVectorTable()}

	for vector := uint8(0); vector < ExceptionCount; vector++ {
		var ist uint8
		if vector == DoubleFault {
			ist = segment.DoubleFaultIST
		}

		if err := state.bind(vector, ist, binding{kind: boundException, exception: DefaultExceptionHandler}); err != nil {
			return err
		}
	}

	return LoadVectors(&state.table)
}
