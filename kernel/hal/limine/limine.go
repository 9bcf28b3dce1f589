// Package limine decodes the boot loader responses that describe the
// physical memory layout of the machine.
package limine

import "unsafe"

// RegionType describes the type of a memory map entry.
type RegionType uint64

const (
	// Usable memory is free for the kernel to allocate.
	Usable RegionType = iota

	// Reserved memory must not be touched.
	Reserved

	// ACPIReclaimable memory holds ACPI tables and can be reused once
	// they have been parsed.
	ACPIReclaimable

	// ACPINVS memory must be preserved across sleep states.
	ACPINVS

	// BadMemory covers defective RAM.
	BadMemory

	// BootloaderReclaimable memory holds boot loader structures (including
	// these responses) and can be reused once they are no longer needed.
	BootloaderReclaimable

	// KernelAndModules covers the loaded kernel image and modules.
	KernelAndModules

	// Framebuffer covers the linear framebuffer.
	Framebuffer
)

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	switch t {
	case Usable:
		return "usable"
	case Reserved:
		return "reserved"
	case ACPIReclaimable:
		return "ACPI (reclaimable)"
	case ACPINVS:
		return "ACPI NVS"
	case BadMemory:
		return "bad memory"
	case BootloaderReclaimable:
		return "bootloader (reclaimable)"
	case KernelAndModules:
		return "kernel and modules"
	case Framebuffer:
		return "framebuffer"
	default:
		return "unknown"
	}
}

// MemoryRegion describes a contiguous range of physical memory. Its layout
// matches the memory map entries supplied by the boot loader.
type MemoryRegion struct {
	// The physical address for this memory region.
	Base uint64

	// The length of the memory region in bytes.
	Length uint64

	// The type of this entry.
	Type RegionType
}

// End returns the address just past the end of the region.
func (r *MemoryRegion) End() uint64 {
	return r.Base + r.Length
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region. The
// region is a copy that is only valid until the visitor returns. The visitor
// must return true to continue or false to abort the scan.
type MemRegionVisitor func(region *MemoryRegion) bool

// MaxMemoryRegions is the number of regions that MemoryRegions callers are
// expected to provide storage for.
const MaxMemoryRegions = 64

type memoryMapResponse struct {
	revision   uint64
	entryCount uint64

	// entries points to an array of entryCount pointers to MemoryRegion.
	entries uintptr
}

type hhdmResponse struct {
	revision uint64
	offset   uint64
}

var (
	memmapResponsePtr uintptr
	hhdmResponsePtr   uintptr

	// visitedRegion holds the copy of the entry passed to a memory map
	// visitor. The boot loader response is never written.
	visitedRegion MemoryRegion
)

// SetMemoryMapResponse records the address of the memory map response. It
// must be called before using any of the memory map functions.
func SetMemoryMapResponse(ptr uintptr) {
	memmapResponsePtr = ptr
}

// VisitMemRegions invokes visitor for each memory region reported by the boot
// loader, in the order they were reported. Entries with an unknown type are
// reported as Reserved; the entries themselves are left untouched.
func VisitMemRegions(visitor MemRegionVisitor) {
	if memmapResponsePtr == 0 {
		return
	}

	resp := (*memoryMapResponse)(unsafe.Pointer(memmapResponsePtr))
	if resp.entries == 0 {
		return
	}

	for index := uint64(0); index < resp.entryCount; index++ {
		entryPtr := *(*uintptr)(unsafe.Pointer(resp.entries + uintptr(index)*unsafe.Sizeof(uintptr(0))))
		if entryPtr == 0 {
			continue
		}

		visitedRegion = *(*MemoryRegion)(unsafe.Pointer(entryPtr))
		if visitedRegion.Type > Framebuffer {
			visitedRegion.Type = Reserved
		}

		if !visitor(&visitedRegion) {
			return
		}
	}
}

// MemoryRegions copies up to len(dst) memory regions into dst and returns
// the number of copied regions. Callers typically pass a statically
// allocated array of MaxMemoryRegions entries.
func MemoryRegions(dst []MemoryRegion) int {
	var count int
	VisitMemRegions(func(region *MemoryRegion) bool {
		if count == len(dst) {
			return false
		}

		dst[count] = *region
		count++
		return true
	})

	return count
}

// SetHHDMResponse records the address of the higher-half direct map
// response.
func SetHHDMResponse(ptr uintptr) {
	hhdmResponsePtr = ptr
}

// HHDMOffset returns the virtual address at which the boot loader maps
// physical address 0 or 0 if no response is available.
func HHDMOffset() uint64 {
	if hhdmResponsePtr == 0 {
		return 0
	}
	return (*hhdmResponse)(unsafe.Pointer(hhdmResponsePtr)).offset
}
