package serial

import (
	"bytes"
	"testing"

	"github.com/WebFirstLanguage/wflos/kernel/cpu"
)

type portWrite struct {
	port uint16
	val  uint8
}

// mockUART emulates a UART whose loopback echoes loopbackReply and whose
// line status register always reports lineStatus.
type mockUART struct {
	writes        []portWrite
	loopbackReply uint8
	lineStatus    uint8
	rx            []byte
}

func (m *mockUART) install(t *testing.T) {
	portWriteByteFn = func(port uint16, val uint8) {
		m.writes = append(m.writes, portWrite{port, val})
	}
	portReadByteFn = func(port uint16) uint8 {
		switch port {
		case COM1 + regLineStatus:
			status := m.lineStatus
			if len(m.rx) != 0 {
				status |= lineStatusRxReady
			}
			return status
		case COM1 + regData:
			if len(m.rx) != 0 {
				b := m.rx[0]
				m.rx = m.rx[1:]
				return b
			}
			return m.loopbackReply
		}
		return 0
	}

	t.Cleanup(func() {
		portWriteByteFn = cpu.PortWriteByte
		portReadByteFn = cpu.PortReadByte
	})
}

func (m *mockUART) dataWrites() []byte {
	var out []byte
	for _, w := range m.writes {
		if w.port == COM1+regData {
			out = append(out, w.val)
		}
	}
	return out
}

func TestPortInit(t *testing.T) {
	uart := &mockUART{loopbackReply: selfTestByte, lineStatus: lineStatusTxEmpty}
	uart.install(t)

	port := NewPort(COM1)
	if err := port.Init(); err != nil {
		t.Fatal(err)
	}

	if !port.Ready() {
		t.Fatal("expected port to be ready after a successful self-test")
	}

	exp := []portWrite{
		{COM1 + regIntEnable, 0},
		{COM1 + regLineControl, lineControlDLAB},
		{COM1 + regData, baudDivisor},
		{COM1 + regIntEnable, 0},
		{COM1 + regLineControl, lineControl8N1},
		{COM1 + regFIFOControl, fifoEnable},
		{COM1 + regModemCtrl, modemIRQ},
		{COM1 + regModemCtrl, modemLoopback},
		{COM1 + regData, selfTestByte},
		{COM1 + regModemCtrl, modemNormal},
	}

	if len(uart.writes) != len(exp) {
		t.Fatalf("expected %d port writes; got %d", len(exp), len(uart.writes))
	}

	for i := range exp {
		if uart.writes[i] != exp[i] {
			t.Errorf("[write %d] expected 0x%x -> port 0x%x; got 0x%x -> port 0x%x", i, exp[i].val, exp[i].port, uart.writes[i].val, uart.writes[i].port)
		}
	}
}

func TestPortSelfTestFailure(t *testing.T) {
	uart := &mockUART{loopbackReply: 0xff, lineStatus: lineStatusTxEmpty}
	uart.install(t)

	port := NewPort(COM1)
	if err := port.Init(); err != errSelfTestFailed {
		t.Fatalf("expected errSelfTestFailed; got %v", err)
	}

	uart.writes = nil
	if n, err := port.Write([]byte("lost")); n != 0 || err != errNotReady {
		t.Fatalf("expected write to fail with errNotReady; got %d, %v", n, err)
	}

	if len(uart.writes) != 0 {
		t.Fatalf("expected no port writes on a failed port; got %d", len(uart.writes))
	}
}

func TestPortWrite(t *testing.T) {
	uart := &mockUART{loopbackReply: selfTestByte, lineStatus: lineStatusTxEmpty}
	uart.install(t)

	port := NewPort(COM1)
	if err := port.Init(); err != nil {
		t.Fatal(err)
	}

	uart.writes = nil
	n, err := port.Write([]byte("ok\n"))
	if err != nil {
		t.Fatal(err)
	}

	if n != 3 {
		t.Fatalf("expected to write 3 bytes; wrote %d", n)
	}

	if exp, got := []byte("ok\r\n"), uart.dataWrites(); !bytes.Equal(got, exp) {
		t.Fatalf("expected data register writes %q; got %q", exp, got)
	}
}

func TestPortWriteTimeout(t *testing.T) {
	uart := &mockUART{loopbackReply: selfTestByte}
	uart.install(t)

	port := NewPort(COM1)
	if err := port.Init(); err != nil {
		t.Fatal(err)
	}

	if err := port.WriteByte('x'); err != errTxTimeout {
		t.Fatalf("expected errTxTimeout; got %v", err)
	}
}

func TestPortReadByte(t *testing.T) {
	uart := &mockUART{loopbackReply: selfTestByte, lineStatus: lineStatusTxEmpty}
	uart.install(t)

	port := NewPort(COM1)
	if _, ok := port.ReadByte(); ok {
		t.Fatal("expected ReadByte to fail before Init")
	}

	if err := port.Init(); err != nil {
		t.Fatal(err)
	}

	if _, ok := port.ReadByte(); ok {
		t.Fatal("expected ReadByte to fail when no data is available")
	}

	uart.rx = []byte("h")
	if b, ok := port.ReadByte(); !ok || b != 'h' {
		t.Fatalf("expected to read 'h'; got %q, %t", b, ok)
	}
}

func TestDriverInterface(t *testing.T) {
	uart := &mockUART{loopbackReply: selfTestByte, lineStatus: lineStatusTxEmpty}
	uart.install(t)

	drv := DriverInfo.Probe()
	if drv == nil {
		t.Fatal("expected probe to return a driver")
	}

	if exp, got := "uart_16550", drv.DriverName(); got != exp {
		t.Errorf("expected driver name %q; got %q", exp, got)
	}

	if major, minor, patch := drv.DriverVersion(); major != 0 || minor != 1 || patch != 0 {
		t.Errorf("unexpected driver version %d.%d.%d", major, minor, patch)
	}

	var buf bytes.Buffer
	if err := drv.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	if exp, got := "port 0x3f8 configured for 38400 baud 8N1\n", buf.String(); got != exp {
		t.Fatalf("expected driver init output %q; got %q", exp, got)
	}
}
