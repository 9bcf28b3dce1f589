// Package serial provides a polled driver for 16550-compatible UARTs.
package serial

import (
	"io"

	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
)

// COM1 is the I/O port base of the first serial port.
const COM1 = 0x3f8

// UART register offsets relative to the port base.
const (
	regData        = 0
	regIntEnable   = 1
	regFIFOControl = 2
	regLineControl = 3
	regModemCtrl   = 4
	regLineStatus  = 5
)

const (
	// While DLAB is set, the data and interrupt enable registers hold the
	// baud rate divisor. 115200 / 3 = 38400 baud.
	lineControlDLAB = 0x80
	baudDivisor     = 3

	// 8 data bits, no parity, one stop bit.
	lineControl8N1 = 0x03

	// Enable and clear both FIFOs with a 14-byte threshold.
	fifoEnable = 0xc7

	// DTR, RTS and OUT2 asserted.
	modemNormal = 0x0f
	modemIRQ    = 0x0b

	// modemLoopback routes the transmitter to the receiver so the chip can
	// be tested without a remote end.
	modemLoopback = 0x1e
	selfTestByte  = 0xae

	lineStatusTxEmpty = 0x20
	lineStatusRxReady = 0x01

	// maxTxSpins bounds the wait for the transmit holding register so a
	// wedged UART cannot hang the kernel log.
	maxTxSpins = 1 << 16
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errSelfTestFailed = &kernel.Error{Module: "serial", Message: "loopback self-test failed"}
	errNotReady       = &kernel.Error{Module: "serial", Message: "port not initialized"}
	errTxTimeout      = &kernel.Error{Module: "serial", Message: "transmitter timeout"}
)

// Port is a 16550 UART driven by polling. Until Init succeeds all writes are
// discarded.
type Port struct {
	base  uint16
	ready bool
}

// NewPort returns a port driver for the UART at base.
func NewPort(base uint16) Port {
	return Port{base: base}
}

// Init programs the UART for 38400 baud 8N1 and verifies it with a loopback
// self-test.
func (p *Port) Init() *kernel.Error {
	p.ready = false

	portWriteByteFn(p.base+regIntEnable, 0)
	portWriteByteFn(p.base+regLineControl, lineControlDLAB)
	portWriteByteFn(p.base+regData, baudDivisor)
	portWriteByteFn(p.base+regIntEnable, 0)
	portWriteByteFn(p.base+regLineControl, lineControl8N1)
	portWriteByteFn(p.base+regFIFOControl, fifoEnable)
	portWriteByteFn(p.base+regModemCtrl, modemIRQ)

	portWriteByteFn(p.base+regModemCtrl, modemLoopback)
	portWriteByteFn(p.base+regData, selfTestByte)
	if portReadByteFn(p.base+regData) != selfTestByte {
		return errSelfTestFailed
	}

	portWriteByteFn(p.base+regModemCtrl, modemNormal)
	p.ready = true
	return nil
}

// Ready returns true if the port passed its self-test.
func (p *Port) Ready() bool {
	return p.ready
}

// WriteByte implements io.ByteWriter. Line feeds are expanded to CR LF.
func (p *Port) WriteByte(b byte) error {
	if !p.ready {
		return errNotReady
	}

	if b == '\n' {
		if err := p.transmit('\r'); err != nil {
			return err
		}
	}

	if err := p.transmit(b); err != nil {
		return err
	}

	return nil
}

func (p *Port) transmit(b byte) *kernel.Error {
	for spins := 0; portReadByteFn(p.base+regLineStatus)&lineStatusTxEmpty == 0; spins++ {
		if spins == maxTxSpins {
			return errTxTimeout
		}
	}

	portWriteByteFn(p.base+regData, b)
	return nil
}

// Write implements io.Writer.
func (p *Port) Write(data []byte) (int, error) {
	for count, b := range data {
		if err := p.WriteByte(b); err != nil {
			return count, err
		}
	}

	return len(data), nil
}

// ReadByte returns the next received byte if one is available.
func (p *Port) ReadByte() (byte, bool) {
	if !p.ready || portReadByteFn(p.base+regLineStatus)&lineStatusRxReady == 0 {
		return 0, false
	}

	return portReadByteFn(p.base + regData), true
}

// DriverName returns the name of this driver.
func (p *Port) DriverName() string {
	return "uart_16550"
}

// DriverVersion returns the version of this driver.
func (p *Port) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (p *Port) DriverInit(w io.Writer) *kernel.Error {
	if err := p.Init(); err != nil {
		return err
	}

	kfmt.Fprintf(w, "port 0x%x configured for 38400 baud 8N1\n", p.base)
	return nil
}

var (
	com1 = Port{base: COM1}

	// DriverInfo registers the COM1 driver with the device registry.
	DriverInfo = device.DriverInfo{Order: device.DetectOrderEarly, Probe: probeForCOM1}
)

// probeForCOM1 returns the COM1 driver. The presence of the UART is verified
// by the self-test in DriverInit.
func probeForCOM1() device.Driver {
	return &com1
}
