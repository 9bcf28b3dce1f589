package shell

import (
	"io"
	"strings"
	"testing"

	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/device/tty"
	"github.com/WebFirstLanguage/wflos/device/video/console"
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/hal"
	"github.com/WebFirstLanguage/wflos/kernel/mm"
	"github.com/WebFirstLanguage/wflos/kernel/mm/pmm"
	"github.com/WebFirstLanguage/wflos/kernel/sync"
)

func execute(t *testing.T, line string) string {
	buf := captureOutput(t)

	cmd, err := Parse([]byte(line))
	if err != nil {
		t.Fatalf("unexpected error parsing %q: %v", line, err)
	}

	Execute(cmd)
	return buf.String()
}

func TestMemInfoCommand(t *testing.T) {
	defer func() { statsFn = pmm.Stats }()
	statsFn = func() (uint64, uint64, uint64) { return 100, 10, 90 }

	exp := "total frames: 100 (400 KB)\n" +
		"used frames:  10 (40 KB)\n" +
		"free frames:  90 (360 KB)\n" +
		"frame size: 4 KB\n"

	if got := execute(t, "meminfo"); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}

func TestAllocCommand(t *testing.T) {
	defer func() { allocFrameFn = pmm.AllocFrame }()

	allocFrameFn = func() (mm.Frame, *kernel.Error) { return mm.Frame(5), nil }
	if got, exp := execute(t, "alloc"), "allocated frame 5 at 0x5000\n"; got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}

	allocFrameFn = func() (mm.Frame, *kernel.Error) { return mm.InvalidFrame, pmm.ErrOutOfMemory }
	if got, exp := execute(t, "alloc"), "alloc: out of memory\n"; got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}
}

func TestFreeCommand(t *testing.T) {
	defer func() { freeFrameFn = pmm.FreeFrame }()

	var freed []mm.Frame
	freeFrameFn = func(frame mm.Frame) *kernel.Error {
		freed = append(freed, frame)
		if frame == 7 {
			return pmm.ErrDoubleFree
		}
		return nil
	}

	specs := []struct {
		line      string
		expOutput string
	}{
		{"free 0x5000", "released frame 5\n"},
		{"free 7000", "free: " + pmm.ErrDoubleFree.Message + "\n"},
		{"free 0x5001", "free: address 0x5001 is not page aligned\n"},
		{"free", "free: expected a hex frame address\n"},
		{"free xyz", "free: expected a hex frame address\n"},
	}

	for specIndex, spec := range specs {
		if got := execute(t, spec.line); got != spec.expOutput {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, spec.expOutput, got)
		}
	}

	if len(freed) != 2 || freed[0] != 5 || freed[1] != 7 {
		t.Fatalf("expected frames 5 and 7 to be released; got %v", freed)
	}
}

type mockTTY struct {
	clearCount int
}

func (m *mockTTY) Write(p []byte) (int, error)      { return len(p), nil }
func (m *mockTTY) WriteByte(_ byte) error           { return nil }
func (m *mockTTY) AttachTo(_ console.Device)        {}
func (m *mockTTY) CursorPosition() (uint32, uint32) { return 1, 1 }
func (m *mockTTY) SetCursorPosition(_, _ uint32)    {}
func (m *mockTTY) Clear()                           { m.clearCount++ }

func TestClearCommand(t *testing.T) {
	defer func() { activeTTYFn = hal.ActiveTTY }()

	activeTTYFn = func() tty.Device { return nil }
	if got, exp := execute(t, "clear"), "no terminal attached\n"; got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}

	term := &mockTTY{}
	activeTTYFn = func() tty.Device { return term }
	execute(t, "clear")
	if term.clearCount != 1 {
		t.Fatal("expected the active terminal to be cleared")
	}
}

func TestCPUCommand(t *testing.T) {
	defer func() { cpuVendorFn = cpu.Vendor }()
	cpuVendorFn = func() [12]byte {
		var v [12]byte
		copy(v[:], "GenuineIntel")
		return v
	}

	if got, exp := execute(t, "cpu"), "vendor: GenuineIntel\n"; got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}
}

type mockDriver struct{ name string }

func (d *mockDriver) DriverName() string                     { return d.name }
func (d *mockDriver) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }
func (d *mockDriver) DriverInit(_ io.Writer) *kernel.Error    { return nil }

func TestDriversCommand(t *testing.T) {
	defer func() { activeDriversFn = hal.ActiveDrivers }()
	activeDriversFn = func() []device.Driver {
		return []device.Driver{&mockDriver{"uart_16550"}, &mockDriver{"ps2_keyboard"}}
	}

	if got, exp := execute(t, "drivers"), "uart_16550 0.1.0\nps2_keyboard 0.1.0\n"; got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}
}

func TestHaltCommand(t *testing.T) {
	defer func() {
		haltFn = cpu.Halt
		disableIntrFn = cpu.DisableInterrupts
	}()

	var calls []string
	disableIntrFn = func() { calls = append(calls, "cli") }
	haltFn = func() { calls = append(calls, "hlt") }

	execute(t, "halt")
	if len(calls) != 2 || calls[0] != "cli" || calls[1] != "hlt" {
		t.Fatalf("expected interrupts to be disabled before halting; got %v", calls)
	}
}

func TestPICCommand(t *testing.T) {
	sync.SetInterruptMaskFuncs(func() uint64 { return 0 }, func(uint64) {})
	defer sync.SetInterruptMaskFuncs(nil, nil)

	got := execute(t, "pic")
	if !strings.HasPrefix(got, "primary offset: 32, secondary offset: 40\nmask: 0x") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestIRQCommand(t *testing.T) {
	sync.SetInterruptMaskFuncs(func() uint64 { return 0 }, func(uint64) {})
	defer sync.SetInterruptMaskFuncs(nil, nil)

	got := execute(t, "irq")
	if !strings.HasPrefix(got, "line vector     raised errors\n") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestHelpCommand(t *testing.T) {
	got := execute(t, "help")
	for _, entry := range commandTable {
		if entry.usage != "" && !strings.Contains(got, entry.usage) {
			t.Errorf("expected help output to include %q", entry.usage)
		}
	}

	if strings.Contains(got, "  mem ") {
		t.Error("expected aliases to be omitted from the help output")
	}
}
