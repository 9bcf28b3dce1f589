// Package pmm implements the physical frame allocator used by the kernel.
package pmm

import (
	"math/bits"

	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/hal/limine"
	"github.com/WebFirstLanguage/wflos/kernel/mm"
)

const (
	// MaxFrames is the number of frames that the allocator can track. With
	// 4K pages this covers the first 1G of physical memory.
	MaxFrames = 262144

	bitmapWords = MaxFrames / 64
)

var (
	// ErrOutOfMemory is returned by AllocFrame when all managed frames are
	// in use.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	// ErrFrameNotManaged is returned when freeing a frame that lies outside
	// the tracked range or overlaps a reserved region.
	ErrFrameNotManaged = &kernel.Error{Module: "pmm", Message: "frame is not managed by the allocator"}

	// ErrDoubleFree is returned when freeing a frame that is not allocated.
	ErrDoubleFree = &kernel.Error{Module: "pmm", Message: "frame is already free"}

	// memsetFn is mocked by tests.
	memsetFn = kernel.Memset
)

// BitmapAllocator implements a first-fit physical frame allocator that tracks
// frame reservations using a pair of bitmaps. Bit i of each bitmap describes
// frame i.
//
// The zero value tracks no frames; Init must be called before use.
type BitmapAllocator struct {
	// used has a bit set for every frame that is either allocated or
	// reserved. Bits past trackedFrames are always set.
	used [bitmapWords]uint64

	// managed has a bit set for every frame that is handed out by this
	// allocator.
	managed [bitmapWords]uint64

	// trackedFrames is the number of frames covered by the bitmaps.
	trackedFrames uint64

	// totalFrames and usedFrames count managed frames.
	totalFrames uint64
	usedFrames  uint64

	// scanStart is the index of the lowest bitmap word that may contain a
	// free frame.
	scanStart int
}

// Init sets up the allocator state using the supplied memory map. Only frames
// that lie entirely inside a usable region are handed out; frames that belong
// to the kernel image [kernelStart, kernelEnd) or lie below the kernel load
// address remain reserved.
func (alloc *BitmapAllocator) Init(regions []limine.MemoryRegion, kernelStart, kernelEnd uintptr) {
	var highest uint64
	for i := range regions {
		if regions[i].Type == limine.Usable && regions[i].End() > highest {
			highest = regions[i].End()
		}
	}

	alloc.trackedFrames = highest >> mm.PageShift
	if alloc.trackedFrames > MaxFrames {
		alloc.trackedFrames = MaxFrames
	}
	alloc.totalFrames, alloc.usedFrames, alloc.scanStart = 0, 0, 0

	for i := range alloc.used {
		alloc.used[i] = ^uint64(0)
		alloc.managed[i] = 0
	}

	// The kernel image end is rounded up so that partially occupied frames
	// are never handed out.
	reservedEnd := uint64((kernelEnd + mm.PageSize - 1) >> mm.PageShift)
	if kernelEnd <= kernelStart {
		reservedEnd = uint64(kernelStart >> mm.PageShift)
	}

	pageSizeMinus1 := uint64(mm.PageSize - 1)
	for i := range regions {
		region := &regions[i]
		if region.Type != limine.Usable {
			continue
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		startFrame := ((region.Base + pageSizeMinus1) &^ pageSizeMinus1) >> mm.PageShift
		endFrame := (region.End() &^ pageSizeMinus1) >> mm.PageShift

		if startFrame < reservedEnd {
			startFrame = reservedEnd
		}
		if endFrame > alloc.trackedFrames {
			endFrame = alloc.trackedFrames
		}

		for frame := startFrame; frame < endFrame; frame++ {
			word, mask := frame>>6, uint64(1)<<(frame&63)
			if alloc.managed[word]&mask != 0 {
				// overlapping regions
				continue
			}

			alloc.managed[word] |= mask
			alloc.used[word] &^= mask
			alloc.totalFrames++
		}
	}
}

// AllocFrame reserves the lowest-numbered free frame.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	wordCount := int((alloc.trackedFrames + 63) >> 6)
	for word := alloc.scanStart; word < wordCount; word++ {
		if alloc.used[word] == ^uint64(0) {
			continue
		}

		bit := uint64(bits.TrailingZeros64(^alloc.used[word]))
		alloc.used[word] |= 1 << bit
		alloc.usedFrames++
		alloc.scanStart = word

		return mm.Frame(uint64(word)<<6 + bit), nil
	}

	alloc.scanStart = wordCount
	return mm.InvalidFrame, ErrOutOfMemory
}

// FreeFrame releases a frame previously returned by AllocFrame.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	if uint64(frame) >= alloc.trackedFrames {
		return ErrFrameNotManaged
	}

	word, mask := uint64(frame)>>6, uint64(1)<<(uint64(frame)&63)
	switch {
	case alloc.managed[word]&mask == 0:
		return ErrFrameNotManaged
	case alloc.used[word]&mask == 0:
		return ErrDoubleFree
	}

	alloc.used[word] &^= mask
	alloc.usedFrames--
	if int(word) < alloc.scanStart {
		alloc.scanStart = int(word)
	}

	return nil
}

// AllocZeroedFrame reserves a frame and clears its contents through the
// higher-half direct map.
func (alloc *BitmapAllocator) AllocZeroedFrame() (mm.Frame, *kernel.Error) {
	frame, err := alloc.AllocFrame()
	if err != nil {
		return frame, err
	}

	memsetFn(mm.PhysToVirt(frame.Address()), 0, mm.PageSize)
	return frame, nil
}

// Stats returns the number of managed frames along with the number of used
// and free frames. used + free always equals total.
func (alloc *BitmapAllocator) Stats() (total, used, free uint64) {
	return alloc.totalFrames, alloc.usedFrames, alloc.totalFrames - alloc.usedFrames
}

// IsFree returns true if frame is managed by the allocator and not currently
// allocated.
func (alloc *BitmapAllocator) IsFree(frame mm.Frame) bool {
	if uint64(frame) >= alloc.trackedFrames {
		return false
	}

	word, mask := uint64(frame)>>6, uint64(1)<<(uint64(frame)&63)
	return alloc.managed[word]&mask != 0 && alloc.used[word]&mask == 0
}

// IsManaged returns true if frame can be handed out by the allocator.
func (alloc *BitmapAllocator) IsManaged(frame mm.Frame) bool {
	if uint64(frame) >= alloc.trackedFrames {
		return false
	}

	return alloc.managed[uint64(frame)>>6]&(uint64(1)<<(uint64(frame)&63)) != 0
}

// TrackedFrames returns the number of frames covered by the bitmaps.
func (alloc *BitmapAllocator) TrackedFrames() uint64 {
	return alloc.trackedFrames
}
