package console

import (
	"io"
	"unsafe"

	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/mm"
)

const (
	// vgaTextPhysAddr is the physical address of the mode 0x3
	// framebuffer.
	vgaTextPhysAddr = 0xb8000

	vgaTextColumns = 80
	vgaTextRows    = 25

	// CRT controller index/data ports and the cursor location registers.
	crtcIndexPort     = 0x3d4
	crtcDataPort      = 0x3d5
	crtcCursorLocHigh = 0x0e
	crtcCursorLocLow  = 0x0f
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	hhdmOffsetFn    = mm.HHDMOffset

	errNoDirectMap = &kernel.Error{Module: "vga_text", Message: "framebuffer is not reachable without a direct map"}
)

// VgaTextConsole implements an EGA-compatible text console using VGA mode
// 0x3.
//
// Each character in the console framebuffer is represented using two bytes,
// a byte for the character ASCII code and a byte that encodes the foreground
// and background colors (4 bits for each).
//
// The default settings for the console are:
//   - light gray text (color 7) on black background (color 0).
//   - space as the clear character
type VgaTextConsole struct {
	width  uint32
	height uint32
	fb     []uint16

	defaultFg uint8
	defaultBg uint8
	clearChar uint16
}

// Init attaches the console to a framebuffer of columns x rows cells
// starting at fbAddr. The framebuffer must be accessible at fbAddr.
func (cons *VgaTextConsole) Init(columns, rows uint32, fbAddr uintptr) {
	cons.width, cons.height = columns, rows
	cons.fb = unsafe.Slice((*uint16)(unsafe.Pointer(fbAddr)), columns*rows)
	cons.defaultFg, cons.defaultBg = 7, 0
	cons.clearChar = uint16(' ')
}

// Dimensions returns the console width and height in characters.
func (cons *VgaTextConsole) Dimensions() (uint32, uint32) {
	return cons.width, cons.height
}

// DefaultColors returns the default foreground and background colors
// used by this console.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) {
	return cons.defaultFg, cons.defaultBg
}

func attr(fg, bg uint8) uint16 {
	return ((uint16(bg&0xf) << 4) | uint16(fg&0xf)) << 8
}

// Fill sets the contents of the specified rectangular region to the clear
// character using the requested colors. The rectangle is clipped to the
// console.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	if width == 0 || height == 0 {
		return
	}

	// clip rectangle
	if x == 0 {
		x = 1
	} else if x > cons.width {
		x = cons.width
	}

	if y == 0 {
		y = 1
	} else if y > cons.height {
		y = cons.height
	}

	if x+width-1 > cons.width {
		width = cons.width - x + 1
	}

	if y+height-1 > cons.height {
		height = cons.height - y + 1
	}

	clr := attr(fg, bg) | cons.clearChar
	for row := y - 1; row < y-1+height; row++ {
		line := cons.fb[row*cons.width+x-1 : row*cons.width+x-1+width]
		for i := range line {
			line[i] = clr
		}
	}
}

// Scroll the console contents to the specified direction. The caller
// is responsible for updating (e.g. clear or replace) the contents of
// the region that was scrolled.
func (cons *VgaTextConsole) Scroll(dir ScrollDir, lines uint32) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := lines * cons.width
	switch dir {
	case ScrollDirUp:
		copy(cons.fb, cons.fb[offset:])
	case ScrollDirDown:
		copy(cons.fb[offset:], cons.fb)
	}
}

// Write a char to the specified location. Writes outside the console are
// ignored.
func (cons *VgaTextConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	cons.fb[((y-1)*cons.width)+(x-1)] = attr(fg, bg) | uint16(ch)
}

// SetCursor moves the hardware cursor to the specified location.
func (cons *VgaTextConsole) SetCursor(x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	pos := uint16((y-1)*cons.width + (x - 1))
	portWriteByteFn(crtcIndexPort, crtcCursorLocHigh)
	portWriteByteFn(crtcDataPort, uint8(pos>>8))
	portWriteByteFn(crtcIndexPort, crtcCursorLocLow)
	portWriteByteFn(crtcDataPort, uint8(pos))
}

// DriverName returns the name of this driver.
func (cons *VgaTextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit attaches the console to the mode 0x3 framebuffer through the
// higher-half direct map and clears it.
func (cons *VgaTextConsole) DriverInit(w io.Writer) *kernel.Error {
	offset := hhdmOffsetFn()
	if offset == 0 {
		return errNoDirectMap
	}

	fbAddr := offset + vgaTextPhysAddr
	cons.Init(vgaTextColumns, vgaTextRows, fbAddr)
	cons.Fill(1, 1, cons.width, cons.height, cons.defaultFg, cons.defaultBg)
	cons.SetCursor(1, 1)

	kfmt.Fprintf(w, "%dx%d framebuffer at 0x%x\n", cons.width, cons.height, fbAddr)
	return nil
}

var (
	vgaConsole VgaTextConsole

	// DriverInfo registers the VGA text console with the device registry.
	DriverInfo = device.DriverInfo{Order: device.DetectOrderConsole, Probe: probeForVgaTextConsole}
)

// probeForVgaTextConsole returns the VGA text console driver. The
// framebuffer is only reachable once the boot loader has reported the
// direct map offset.
func probeForVgaTextConsole() device.Driver {
	if hhdmOffsetFn() == 0 {
		return nil
	}

	return &vgaConsole
}
