// Package mm defines the physical frame primitives shared by the memory
// management code and the translation between physical addresses and the
// higher-half direct map set up by the boot loader.
package mm

import (
	"math"

	"github.com/WebFirstLanguage/wflos/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when they fail to
	// reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of the frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains physAddr. Addresses that
// are not page-aligned are rounded down.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr &^ (PageSize - 1)) >> PageShift)
}

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// hhdmOffset is the virtual address at which the boot loader maps
	// physical address 0.
	hhdmOffset uintptr

	errNoFrameAllocator = &kernel.Error{Module: "mm", Message: "no frame allocator registered"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// SetFrameAllocator registers the function used by AllocFrame.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, errNoFrameAllocator
	}
	return frameAllocator()
}

// SetHHDMOffset records the base of the higher-half direct map.
func SetHHDMOffset(offset uintptr) { hhdmOffset = offset }

// HHDMOffset returns the base of the higher-half direct map.
func HHDMOffset() uintptr { return hhdmOffset }

// PhysToVirt returns the direct map address through which the kernel can
// access physAddr.
func PhysToVirt(physAddr uintptr) uintptr {
	return hhdmOffset + physAddr
}
