package gate

import "github.com/WebFirstLanguage/wflos/kernel/segment"

const (
	// gateTypeInterrupt is a 64-bit interrupt gate. The CPU clears IF when
	// entering the handler.
	gateTypeInterrupt = uint8(0xe)

	gatePresent  = uint8(1 << 7)
	gateDPLShift = 5
)

// Descriptor is a 16-byte vector table entry in the layout expected by the
// CPU:
//
//	bytes  0-1   handler offset[0:15]
//	bytes  2-3   code segment selector
//	byte   4     bits 0-2: interrupt stack table index
//	byte   5     type and attributes (present, DPL, gate type)
//	bytes  6-7   handler offset[16:31]
//	bytes  8-11  handler offset[32:63]
//	bytes 12-15  reserved
type Descriptor [2]uint64

// NewDescriptor encodes a present interrupt gate that transfers control to
// handler through the kernel code segment. ist selects an interrupt stack
// table slot (0 = keep the current stack) and dpl is the highest privilege
// level allowed to raise the vector with an INT instruction.
func NewDescriptor(handler uintptr, dpl, ist uint8) Descriptor {
	addr := uint64(handler)
	attr := gatePresent | (dpl&0x3)<<gateDPLShift | gateTypeInterrupt

	return Descriptor{
		addr&0xffff |
			uint64(segment.KernelCodeSelector)<<16 |
			uint64(ist&0x7)<<32 |
			uint64(attr)<<40 |
			(addr>>16)&0xffff<<48,
		addr >> 32,
	}
}

// Offset returns the handler address.
func (d Descriptor) Offset() uintptr {
	return uintptr(d[0]&0xffff | (d[0]>>48)<<16 | d[1]<<32)
}

// Selector returns the code segment selector.
func (d Descriptor) Selector() uint16 {
	return uint16(d[0] >> 16)
}

// IST returns the interrupt stack table index.
func (d Descriptor) IST() uint8 {
	return uint8(d[0]>>32) & 0x7
}

// Attributes returns the type and attribute byte.
func (d Descriptor) Attributes() uint8 {
	return uint8(d[0] >> 40)
}

// DPL returns the descriptor privilege level.
func (d Descriptor) DPL() uint8 {
	return (d.Attributes() >> gateDPLShift) & 0x3
}

// Present returns true if the entry is marked present.
func (d Descriptor) Present() bool {
	return d.Attributes()&gatePresent != 0
}
