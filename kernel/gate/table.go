package gate

import (
	"unsafe"

	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/segment"
)

var (
	// ErrVectorOutOfRange is returned when installing a handler for a
	// vector outside 0-255.
	ErrVectorOutOfRange = &kernel.Error{Module: "gate", Message: "vector must be in range 0-255"}

	// ErrNilHandler is returned when installing a handler with a zero
	// address.
	ErrNilHandler = &kernel.Error{Module: "gate", Message: "handler address must not be zero"}

	// ErrInvalidIST is returned when installing a handler with an interrupt
	// stack table index above 7.
	ErrInvalidIST = &kernel.Error{Module: "gate", Message: "interrupt stack index must be in range 0-7"}

	// ErrSegmentsNotLoaded is returned when loading the vector table before
	// the segment table its entries refer to.
	ErrSegmentsNotLoaded = &kernel.Error{Module: "gate", Message: "segment table must be loaded before the vector table"}

	// ErrMissingExceptionVector is returned when loading a vector table in
	// which one of the CPU exception vectors is absent.
	ErrMissingExceptionVector = &kernel.Error{Module: "gate", Message: "every exception vector (0-31) must be present"}

	// ErrForeignSelector is returned when loading a vector table with a
	// present entry that does not use the kernel code selector.
	ErrForeignSelector = &kernel.Error{Module: "gate", Message: "vector entries must use the kernel code selector"}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	loadIDTFn        = cpu.LoadIDT
	segmentsLoadedFn = segment.Loaded

	idtPointerRecord [segment.PointerRecordSize]byte
)

// VectorTable is the interrupt descriptor table.
type VectorTable struct {
	Entries [VectorCount]Descriptor
}

// BuildVectorTable returns a vector table in which every entry is absent.
// The table the CPU uses is owned by the dispatcher and only changes through
// Init, HandleException and HandleIRQ.
func BuildVectorTable() VectorTable {
	return VectorTable{}
}

// Install points vector at handler. Vectors whose dpl is lower than the
// privilege level of the code raising them with INT cause a general
// protection fault instead. ist selects the interrupt stack (0 keeps the
// interrupted stack).
func (t *VectorTable) Install(vector int, handler uintptr, dpl, ist uint8) *kernel.Error {
	switch {
	case vector < 0 || vector >= VectorCount:
		return ErrVectorOutOfRange
	case handler == 0:
		return ErrNilHandler
	case ist > segment.MaxIST:
		return ErrInvalidIST
	}

	t.Entries[vector] = NewDescriptor(handler, dpl, ist)
	return nil
}

// Remove marks vector as absent.
func (t *VectorTable) Remove(vector int) *kernel.Error {
	if vector < 0 || vector >= VectorCount {
		return ErrVectorOutOfRange
	}

	t.Entries[vector] = Descriptor{}
	return nil
}

// ValidateVectors checks that every CPU exception vector is present in t and
// that every present entry transfers control through the kernel code
// segment.
func ValidateVectors(t *VectorTable) *kernel.Error {
	for vector := 0; vector < VectorCount; vector++ {
		entry := t.Entries[vector]
		switch {
		case !entry.Present():
			if vector < ExceptionCount {
				return ErrMissingExceptionVector
			}
		case entry.Selector() != segment.KernelCodeSelector:
			return ErrForeignSelector
		}
	}

	return nil
}

// LoadVectors validates t and makes it the active vector table. The segment
// table must already be loaded since every entry refers to the kernel code
// selector.
func LoadVectors(t *VectorTable) *kernel.Error {
	if !segmentsLoadedFn() {
		return ErrSegmentsNotLoaded
	}

	if err := ValidateVectors(t); err != nil {
		return err
	}

	idtPointerRecord = segment.EncodePointerRecord(uintptr(unsafe.Pointer(&t.Entries[0])), uint16(unsafe.Sizeof(t.Entries)-1))
	loadIDTFn(uintptr(unsafe.Pointer(&idtPointerRecord[0])))
	return nil
}
