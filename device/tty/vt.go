package tty

import (
	"io"

	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/device/video/console"
	"github.com/WebFirstLanguage/wflos/kernel"
)

// VT implements a terminal that renders directly on the attached console.
// Output that scrolls off the top of the console is discarded. The terminal
// interprets the following special characters:
//   - \r (carriage-return)
//   - \n (line-feed)
//   - \b (backspace; erases the previous character)
//   - \t (tab; expanded to tabWidth spaces)
type VT struct {
	cons console.Device

	width  uint32
	height uint32

	tabWidth uint8
	fg, bg   uint8
	cursorX  uint32
	cursorY  uint32
}

// Init sets the tab expansion width of the terminal.
func (t *VT) Init(tabWidth uint8) {
	t.tabWidth = tabWidth
	t.cursorX, t.cursorY = 1, 1
}

// AttachTo connects the terminal to a console instance and clears it.
func (t *VT) AttachTo(cons console.Device) {
	if cons == nil {
		return
	}

	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.fg, t.bg = cons.DefaultColors()
	t.Clear()
}

// Clear blanks the console and moves the cursor to the top-left corner.
func (t *VT) Clear() {
	if t.cons == nil {
		return
	}

	t.cons.Fill(1, 1, t.width, t.height, t.fg, t.bg)
	t.SetCursorPosition(1, 1)
}

// SetColors changes the colors used for subsequent output.
func (t *VT) SetColors(fg, bg uint8) {
	t.fg, t.bg = fg, bg
}

// CursorPosition returns the current cursor position.
func (t *VT) CursorPosition() (uint32, uint32) {
	return t.cursorX, t.cursorY
}

// SetCursorPosition sets the current cursor position to (x,y).
func (t *VT) SetCursorPosition(x, y uint32) {
	if t.cons == nil {
		return
	}

	if x < 1 {
		x = 1
	} else if x > t.width {
		x = t.width
	}

	if y < 1 {
		y = 1
	} else if y > t.height {
		y = t.height
	}

	t.cursorX, t.cursorY = x, y
	t.syncCursor()
}

// Write implements io.Writer.
func (t *VT) Write(data []byte) (int, error) {
	for count, b := range data {
		if err := t.WriteByte(b); err != nil {
			return count, err
		}
	}

	return len(data), nil
}

// WriteByte implements io.ByteWriter.
func (t *VT) WriteByte(b byte) error {
	if t.cons == nil {
		return io.ErrClosedPipe
	}

	switch b {
	case '\r':
		t.cursorX = 1
	case '\n':
		t.lf()
	case '\b':
		if t.cursorX > 1 {
			t.cursorX--
			t.cons.Write(' ', t.fg, t.bg, t.cursorX, t.cursorY)
		}
	case '\t':
		for i := uint8(0); i < t.tabWidth; i++ {
			t.put(' ')
		}
	default:
		t.put(b)
	}

	t.syncCursor()
	return nil
}

// put writes a character at the cursor position and advances the cursor,
// wrapping to the next line at the right edge.
func (t *VT) put(b byte) {
	t.cons.Write(b, t.fg, t.bg, t.cursorX, t.cursorY)

	t.cursorX++
	if t.cursorX > t.width {
		t.lf()
	}
}

// lf moves the cursor to the start of the next line, scrolling the console
// contents up if the cursor is on the last line.
func (t *VT) lf() {
	t.cursorX = 1
	if t.cursorY < t.height {
		t.cursorY++
		return
	}

	t.cons.Scroll(console.ScrollDirUp, 1)
	t.cons.Fill(1, t.height, t.width, 1, t.fg, t.bg)
}

func (t *VT) syncCursor() {
	if setter, ok := t.cons.(console.CursorSetter); ok {
		setter.SetCursor(t.cursorX, t.cursorY)
	}
}

// DriverName returns the name of this driver.
func (t *VT) DriverName() string {
	return "vt"
}

// DriverVersion returns the version of this driver.
func (t *VT) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes this driver.
func (t *VT) DriverInit(_ io.Writer) *kernel.Error {
	t.Init(DefaultTabWidth)
	return nil
}

var (
	vt VT

	// DriverInfo registers the terminal with the device registry. The
	// terminal is linked to the first console by the hal package.
	DriverInfo = device.DriverInfo{Order: device.DetectOrderConsole, Probe: probeForVT}
)

func probeForVT() device.Driver {
	return &vt
}
