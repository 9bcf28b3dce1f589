// Package ps2 provides an interrupt-driven driver for keyboards attached to
// the 8042 PS/2 controller.
package ps2

import (
	"io"

	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/gate"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/pic"
	"github.com/WebFirstLanguage/wflos/kernel/queue"
)

const (
	dataPort   = 0x60
	statusPort = 0x64

	// statusOutputFull is set while the controller holds a byte for the
	// CPU to read.
	statusOutputFull = 0x01

	// An unpopulated I/O port reads back as all ones.
	statusNoController = 0xff

	// maxFlush bounds the number of stale bytes drained at init.
	maxFlush = 64

	// KeyboardLine is the interrupt controller line of the first PS/2
	// port.
	KeyboardLine = 1

	// BufferSize is the number of scan codes buffered between the
	// interrupt handler and the consumer.
	BufferSize = 256
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portReadByteFn = cpu.PortReadByte
	handleIRQFn    = gate.HandleIRQ
	enableLineFn   = pic.Enable

	scanCodeStorage [BufferSize]uint8
	scanCodes       queue.Shared[uint8]
)

// Keyboard is the driver for the keyboard on the first PS/2 port. Scan codes
// are queued by the interrupt handler and translated on the consumer side.
type Keyboard struct {
	// shift tracks the state of the shift keys. It is only touched by
	// ReadKey so it needs no locking.
	shift bool
}

// DriverName returns the name of this driver.
func (kbd *Keyboard) DriverName() string {
	return "ps2_keyboard"
}

// DriverVersion returns the version of this driver.
func (kbd *Keyboard) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit drains any stale bytes from the controller, binds the interrupt
// handler and unmasks the keyboard line.
func (kbd *Keyboard) DriverInit(w io.Writer) *kernel.Error {
	scanCodes.Init(scanCodeStorage[:])
	kbd.shift = false

	var flushed int
	for ; flushed < maxFlush && portReadByteFn(statusPort)&statusOutputFull != 0; flushed++ {
		portReadByteFn(dataPort)
	}

	if err := handleIRQFn(KeyboardLine, handleInterrupt); err != nil {
		return err
	}

	if err := enableLineFn(KeyboardLine); err != nil {
		return err
	}

	kfmt.Fprintf(w, "discarded %d stale bytes; irq %d mapped to vector %d\n", flushed, KeyboardLine, pic.Vector(KeyboardLine))
	return nil
}

// handleInterrupt runs in interrupt context. It must not block; if the
// buffer is full the scan code is dropped.
func handleInterrupt() *kernel.Error {
	return scanCodes.Push(portReadByteFn(dataPort))
}

// ReadScanCode returns the oldest buffered scan code. It never blocks; the
// second return value is false if no scan code is available.
func ReadScanCode() (uint8, bool) {
	return scanCodes.Pop()
}

// Pending returns the number of buffered scan codes.
func Pending() int {
	return scanCodes.Len()
}

// Dropped returns the number of scan codes lost because the buffer was full.
func Dropped() uint64 {
	return scanCodes.Dropped()
}

// ReadKey consumes buffered scan codes until one translates to a character.
// Break codes and keys without a character mapping are skipped. The second
// return value is false once the buffer is empty.
func (kbd *Keyboard) ReadKey() (byte, bool) {
	for {
		code, ok := ReadScanCode()
		if !ok {
			return 0, false
		}

		switch code {
		case scanLeftShift, scanRightShift:
			kbd.shift = true
			continue
		case scanLeftShift | breakBit, scanRightShift | breakBit:
			kbd.shift = false
			continue
		}

		if ch, ok := Translate(code, kbd.shift); ok {
			return ch, true
		}
	}
}

var (
	keyboard Keyboard

	// DriverInfo registers the keyboard driver with the device registry.
	DriverInfo = device.DriverInfo{Order: device.DetectOrderInterrupts, Probe: probeForKeyboard}
)

// ActiveKeyboard returns the keyboard driver instance.
func ActiveKeyboard() *Keyboard {
	return &keyboard
}

// probeForKeyboard checks for the presence of a PS/2 controller.
func probeForKeyboard() device.Driver {
	if portReadByteFn(statusPort) == statusNoController {
		return nil
	}

	return &keyboard
}
