package pmm

import (
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/hal/limine"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/mm"
	"github.com/WebFirstLanguage/wflos/kernel/sync"
)

var (
	// frameAllocator is the allocator instance used by the kernel. It is
	// never touched by interrupt handlers so a plain guard suffices.
	frameAllocator sync.Guarded[BitmapAllocator]

	// regionBuf holds a copy of the boot memory map.
	regionBuf [limine.MaxMemoryRegions]limine.MemoryRegion

	errNoUsableMemory = &kernel.Error{Module: "pmm", Message: "memory map does not contain any usable frames"}
)

// Init sets up the kernel physical memory allocation sub-system using the
// memory map reported by the boot loader and registers the allocator with
// the mm package.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	regions := regionBuf[:limine.MemoryRegions(regionBuf[:])]
	return InitWithRegions(regions, kernelStart, kernelEnd)
}

// InitWithRegions behaves like Init but uses the supplied memory map.
func InitWithRegions(regions []limine.MemoryRegion, kernelStart, kernelEnd uintptr) *kernel.Error {
	printMemoryMap(regions)

	total, tracked := resetAllocator(regions, kernelStart, kernelEnd)
	if total == 0 {
		return errNoUsableMemory
	}

	kfmt.Printf("[pmm] managing %d of %d tracked frames\n", total, tracked)
	mm.SetFrameAllocator(AllocFrame)
	return nil
}

// resetAllocator reinitializes the kernel allocator from regions and returns
// the number of managed and tracked frames.
func resetAllocator(regions []limine.MemoryRegion, kernelStart, kernelEnd uintptr) (total, tracked uint64) {
	guard := frameAllocator.Lock()
	defer guard.Release()

	alloc := guard.Value()
	alloc.Init(regions, kernelStart, kernelEnd)
	total, _, _ = alloc.Stats()
	return total, alloc.TrackedFrames()
}

// printMemoryMap prints out the system's memory map.
func printMemoryMap(regions []limine.MemoryRegion) {
	kfmt.Printf("[pmm] system memory map:\n")
	var totalFree uint64
	for i := range regions {
		region := &regions[i]
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.Base, region.End(), region.Length, region.Type.String())

		if region.Type == limine.Usable {
			totalFree += region.Length
		}
	}
	kfmt.Printf("[pmm] available memory: %dKb\n", totalFree>>10)
}

// AllocFrame reserves the lowest-numbered free frame.
func AllocFrame() (mm.Frame, *kernel.Error) {
	guard := frameAllocator.Lock()
	defer guard.Release()
	return guard.Value().AllocFrame()
}

// AllocZeroedFrame reserves a frame and clears its contents.
func AllocZeroedFrame() (mm.Frame, *kernel.Error) {
	guard := frameAllocator.Lock()
	defer guard.Release()
	return guard.Value().AllocZeroedFrame()
}

// FreeFrame releases a frame previously returned by AllocFrame.
func FreeFrame(frame mm.Frame) *kernel.Error {
	guard := frameAllocator.Lock()
	defer guard.Release()
	return guard.Value().FreeFrame(frame)
}

// Stats returns the number of total, used and free frames.
func Stats() (total, used, free uint64) {
	guard := frameAllocator.Lock()
	defer guard.Release()
	return guard.Value().Stats()
}
