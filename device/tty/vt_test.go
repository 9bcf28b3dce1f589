package tty

import (
	"io"
	"testing"

	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/device/video/console"
)

func newTestVT(cons console.Device) *VT {
	var term VT
	term.Init(4)
	term.AttachTo(cons)
	return &term
}

func TestVtPosition(t *testing.T) {
	specs := []struct {
		inX, inY   uint32
		expX, expY uint32
	}{
		{20, 20, 20, 20},
		{100, 20, 80, 20},
		{10, 200, 10, 25},
		{0, 0, 1, 1},
		{100, 100, 80, 25},
	}

	var term VT
	term.Init(4)

	// SetCursorPosition without an attached console is a no-op
	term.SetCursorPosition(2, 2)

	if curX, curY := term.CursorPosition(); curX != 1 || curY != 1 {
		t.Fatalf("expected terminal initial position to be (1, 1); got (%d, %d)", curX, curY)
	}

	cons := newMockConsole(80, 25)
	term.AttachTo(cons)

	for specIndex, spec := range specs {
		term.SetCursorPosition(spec.inX, spec.inY)
		if x, y := term.CursorPosition(); x != spec.expX || y != spec.expY {
			t.Errorf("[spec %d] expected setting position to (%d, %d) to update the position to (%d, %d); got (%d, %d)", specIndex, spec.inX, spec.inY, spec.expX, spec.expY, x, y)
		}

		if cons.cursorX != spec.expX || cons.cursorY != spec.expY {
			t.Errorf("[spec %d] expected console cursor to be synced to (%d, %d); got (%d, %d)", specIndex, spec.expX, spec.expY, cons.cursorX, cons.cursorY)
		}
	}
}

func TestVtWrite(t *testing.T) {
	var detached VT
	detached.Init(4)
	if _, err := detached.Write([]byte("foo")); err != io.ErrClosedPipe {
		t.Fatal("expected calling Write on a terminal without an attached console to return ErrClosedPipe")
	}

	cons := newMockConsole(80, 25)
	term := newTestVT(cons)
	term.SetColors(2, 3)

	data := []byte("\b123\b4\t5\n67\r68")
	count, err := term.Write(data)
	if err != nil {
		t.Fatal(err)
	}

	if count != len(data) {
		t.Fatalf("expected to write %d bytes; wrote %d", len(data), count)
	}

	specs := []struct {
		x, y    uint32
		expByte uint8
	}{
		{1, 1, '1'},
		{2, 1, '2'},
		{3, 1, '4'},
		{4, 1, ' '},
		{8, 1, '5'}, // 2 + tabWidth + 1
		{1, 2, '6'},
		{2, 2, '8'},
	}

	for specIndex, spec := range specs {
		offset := ((spec.y - 1) * cons.width) + (spec.x - 1)
		if cons.chars[offset] != spec.expByte {
			t.Errorf("[spec %d] expected console char at (%d, %d) to be %q; got %q", specIndex, spec.x, spec.y, spec.expByte, cons.chars[offset])
		}

		if cons.fgAttrs[offset] != 2 || cons.bgAttrs[offset] != 3 {
			t.Errorf("[spec %d] expected console attributes at (%d, %d) to be (2, 3); got (%d, %d)", specIndex, spec.x, spec.y, cons.fgAttrs[offset], cons.bgAttrs[offset])
		}
	}

	if x, y := term.CursorPosition(); x != 3 || y != 2 {
		t.Fatalf("expected cursor to be at (3, 2); got (%d, %d)", x, y)
	}
}

func TestVtLineWrap(t *testing.T) {
	cons := newMockConsole(10, 3)
	term := newTestVT(cons)

	term.Write([]byte("0123456789ab"))

	if x, y := term.CursorPosition(); x != 3 || y != 2 {
		t.Fatalf("expected cursor to be at (3, 2); got (%d, %d)", x, y)
	}

	if got := cons.row(2); got != "ab        " {
		t.Fatalf("expected wrapped output on line 2; got %q", got)
	}
}

func TestVtLineFeedScroll(t *testing.T) {
	cons := newMockConsole(10, 3)
	term := newTestVT(cons)

	term.Write([]byte("one\ntwo\nthree"))
	if cons.scrollUpCount != 0 {
		t.Fatalf("expected no scrolling before the last line is full; got %d", cons.scrollUpCount)
	}

	term.Write([]byte("\nfour"))
	if cons.scrollUpCount != 1 {
		t.Fatalf("expected console to be scrolled up 1 time; got %d", cons.scrollUpCount)
	}

	for y, exp := range []string{"two       ", "three     ", "four      "} {
		if got := cons.row(uint32(y + 1)); got != exp {
			t.Errorf("expected line %d to be %q; got %q", y+1, exp, got)
		}
	}

	if x, y := term.CursorPosition(); x != 5 || y != 3 {
		t.Fatalf("expected cursor to be at (5, 3); got (%d, %d)", x, y)
	}
}

func TestVtClear(t *testing.T) {
	cons := newMockConsole(10, 3)
	term := newTestVT(cons)

	term.Write([]byte("abc\ndef"))
	term.Clear()

	for y := uint32(1); y <= 3; y++ {
		if got := cons.row(y); got != "          " {
			t.Errorf("expected line %d to be cleared; got %q", y, got)
		}
	}

	if x, y := term.CursorPosition(); x != 1 || y != 1 {
		t.Fatalf("expected cursor to be reset to (1, 1); got (%d, %d)", x, y)
	}
}

func TestVtAttach(t *testing.T) {
	var term VT
	term.Init(4)

	// AttachTo with a nil console should be a no-op
	term.AttachTo(nil)
	if term.width != 0 || term.height != 0 || term.cons != nil {
		t.Fatal("expected attaching a nil console to be a no-op")
	}

	cons := newMockConsole(80, 25)
	cons.chars[0] = 'x'
	term.AttachTo(cons)

	if term.width != cons.width || term.height != cons.height {
		t.Fatal("expected the terminal to initialize using the attached console info")
	}

	if cons.chars[0] != ' ' {
		t.Fatal("expected attaching a console to clear it")
	}
}

func TestVTDriverInterface(t *testing.T) {
	dev := DriverInfo.Probe()
	if dev == nil {
		t.Fatal("expected probeForVT to return a driver")
	}

	if _, ok := dev.(Device); !ok {
		t.Fatal("expected the driver to implement tty.Device")
	}

	if err := dev.DriverInit(nil); err != nil {
		t.Fatal(err)
	}

	if vt.tabWidth != DefaultTabWidth {
		t.Fatalf("expected tab width to be %d; got %d", DefaultTabWidth, vt.tabWidth)
	}

	if dev.DriverName() == "" {
		t.Fatal("DriverName() returned an empty string")
	}

	if major, minor, patch := dev.DriverVersion(); major+minor+patch == 0 {
		t.Fatal("DriverVersion() returned an invalid version number")
	}

	var _ device.Driver = &vt
}

type mockConsole struct {
	width, height    uint32
	fg, bg           uint8
	chars            []uint8
	fgAttrs          []uint8
	bgAttrs          []uint8
	scrollUpCount    int
	cursorX, cursorY uint32
}

func newMockConsole(w, h uint32) *mockConsole {
	return &mockConsole{
		width:   w,
		height:  h,
		fg:      7,
		bg:      0,
		chars:   make([]uint8, w*h),
		fgAttrs: make([]uint8, w*h),
		bgAttrs: make([]uint8, w*h),
	}
}

func (cons *mockConsole) row(y uint32) string {
	return string(cons.chars[(y-1)*cons.width : y*cons.width])
}

func (cons *mockConsole) Dimensions() (uint32, uint32) {
	return cons.width, cons.height
}

func (cons *mockConsole) DefaultColors() (uint8, uint8) {
	return cons.fg, cons.bg
}

func (cons *mockConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	for fy := y; fy < y+height; fy++ {
		offset := (fy-1)*cons.width + x - 1
		for fx := uint32(0); fx < width; fx, offset = fx+1, offset+1 {
			cons.chars[offset] = ' '
			cons.fgAttrs[offset] = fg
			cons.bgAttrs[offset] = bg
		}
	}
}

func (cons *mockConsole) Scroll(dir console.ScrollDir, lines uint32) {
	if dir != console.ScrollDirUp {
		return
	}

	cons.scrollUpCount++
	offset := lines * cons.width
	copy(cons.chars, cons.chars[offset:])
	copy(cons.fgAttrs, cons.fgAttrs[offset:])
	copy(cons.bgAttrs, cons.bgAttrs[offset:])
}

func (cons *mockConsole) Write(b byte, fg, bg uint8, x, y uint32) {
	offset := ((y - 1) * cons.width) + (x - 1)
	cons.chars[offset] = b
	cons.fgAttrs[offset] = fg
	cons.bgAttrs[offset] = bg
}

func (cons *mockConsole) SetCursor(x, y uint32) {
	cons.cursorX, cons.cursorY = x, y
}
