// Package segment builds and loads the segment table (GDT) and the task state
// structure (TSS) used by the kernel.
//
// Segmentation is mostly disabled in long mode but the CPU still consults the
// segment table for the privilege level of the code and data selectors and
// for locating the TSS, which holds the interrupt stack table.
package segment

// Descriptor is an 8-byte segment descriptor in the layout expected by the
// CPU:
//
//	bits  0-15  limit[0:15]
//	bits 16-39  base[0:23]
//	bits 40-47  access byte
//	bits 48-51  limit[16:19]
//	bits 52-55  flags
//	bits 56-63  base[24:31]
type Descriptor uint64

// Access byte bits.
const (
	AccessAccessed   = uint8(1 << 0)
	AccessReadWrite  = uint8(1 << 1)
	AccessExecutable = uint8(1 << 3)

	// AccessSegment is set for code and data segments and cleared for
	// system descriptors such as the TSS.
	AccessSegment = uint8(1 << 4)
	AccessPresent = uint8(1 << 7)

	// AccessTSSAvailable is the system type of an available 64-bit TSS.
	AccessTSSAvailable = uint8(0x9)

	accessDPLShift = 5
)

// Flag nibble bits.
const (
	FlagLongMode    = uint8(1 << 1)
	FlagSize32      = uint8(1 << 2)
	FlagGranularity = uint8(1 << 3)
)

// AccessDPL returns the access byte bits that encode privilege level ring.
func AccessDPL(ring uint8) uint8 {
	return (ring & 0x3) << accessDPLShift
}

// NewDescriptor encodes a segment descriptor. Only the low 20 bits of limit
// and the low 4 bits of flags are used.
func NewDescriptor(base, limit uint32, access, flags uint8) Descriptor {
	return Descriptor(uint64(limit&0xffff) |
		uint64(base&0xffffff)<<16 |
		uint64(access)<<40 |
		uint64((limit>>16)&0xf)<<48 |
		uint64(flags&0xf)<<52 |
		uint64(base>>24)<<56)
}

// Base returns the 32-bit segment base.
func (d Descriptor) Base() uint32 {
	return uint32((d>>16)&0xffffff) | uint32(d>>56)<<24
}

// Limit returns the 20-bit segment limit.
func (d Descriptor) Limit() uint32 {
	return uint32(d&0xffff) | uint32((d>>48)&0xf)<<16
}

// Access returns the access byte.
func (d Descriptor) Access() uint8 {
	return uint8(d >> 40)
}

// Flags returns the flag nibble.
func (d Descriptor) Flags() uint8 {
	return uint8(d>>52) & 0xf
}

// Present returns true if the present bit is set.
func (d Descriptor) Present() bool {
	return d.Access()&AccessPresent != 0
}

// Ring returns the descriptor privilege level.
func (d Descriptor) Ring() uint8 {
	return (d.Access() >> accessDPLShift) & 0x3
}

// IsCode returns true for present code segment descriptors.
func (d Descriptor) IsCode() bool {
	return d.Present() && d.Access()&(AccessSegment|AccessExecutable) == AccessSegment|AccessExecutable
}

// IsData returns true for present data segment descriptors.
func (d Descriptor) IsData() bool {
	return d.Present() && d.Access()&(AccessSegment|AccessExecutable) == AccessSegment
}
