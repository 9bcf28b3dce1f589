// Package pic configures the pair of cascaded 8259A programmable interrupt
// controllers that deliver legacy device interrupts (IRQ 0-15).
package pic

import (
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/sync"
)

const (
	primaryCommandPort   = uint16(0x20)
	primaryDataPort      = uint16(0x21)
	secondaryCommandPort = uint16(0xa0)
	secondaryDataPort    = uint16(0xa1)

	// icw1Init starts the initialization sequence and announces that ICW4
	// will follow.
	icw1Init = uint8(0x11)

	// icw3Primary tells the primary controller that the secondary one is
	// wired to line 2; icw3Secondary tells the secondary controller its
	// cascade identity.
	icw3Primary   = uint8(1 << CascadeLine)
	icw3Secondary = uint8(CascadeLine)

	icw4Mode8086 = uint8(0x01)

	eoiCommand = uint8(0x20)

	// LineCount is the number of interrupt lines served by both controllers.
	LineCount = 16

	// CascadeLine is the primary controller line that the secondary
	// controller is attached to.
	CascadeLine = 2

	// DefaultPrimaryOffset and DefaultSecondaryOffset are the vector bases
	// used by the kernel. They place IRQ 0-15 right after the 32 vectors
	// reserved for CPU exceptions.
	DefaultPrimaryOffset   = uint8(32)
	DefaultSecondaryOffset = uint8(40)

	// firstFreeVector is the first vector that is not reserved for CPU
	// exceptions.
	firstFreeVector = 32

	allMasked = uint16(0xffff)
)

var (
	// ErrInvalidLine is returned for interrupt lines outside 0-15.
	ErrInvalidLine = &kernel.Error{Module: "pic", Message: "interrupt line must be in range 0-15"}

	// ErrInvalidOffset is returned when a vector base overlaps the CPU
	// exception range or is not a multiple of 8.
	ErrInvalidOffset = &kernel.Error{Module: "pic", Message: "vector offset must be a multiple of 8 and at least 32"}

	// ErrOffsetOverlap is returned when both controllers would share vectors.
	ErrOffsetOverlap = &kernel.Error{Module: "pic", Message: "primary and secondary vector ranges overlap"}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	ioWaitFn        = cpu.IOWait

	primaryOffset   = DefaultPrimaryOffset
	secondaryOffset = DefaultSecondaryOffset

	// mask mirrors the interrupt mask registers of both controllers (bit
	// N set = line N masked). The hardware registers are never read back.
	mask sync.IRQGuarded[uint16]
)

// Remap reprograms both controllers so that IRQ 0-7 raise vectors
// primary..primary+7 and IRQ 8-15 raise vectors secondary..secondary+7. All
// lines are left masked.
func Remap(primary, secondary uint8) *kernel.Error {
	if primary < firstFreeVector || secondary < firstFreeVector || primary%8 != 0 || secondary%8 != 0 {
		return ErrInvalidOffset
	}

	if primary == secondary {
		return ErrOffsetOverlap
	}

	guard := mask.Lock()
	defer guard.Release()

	for _, step := range [...]struct {
		port uint16
		val  uint8
	}{
		{primaryCommandPort, icw1Init},
		{secondaryCommandPort, icw1Init},
		{primaryDataPort, primary},
		{secondaryDataPort, secondary},
		{primaryDataPort, icw3Primary},
		{secondaryDataPort, icw3Secondary},
		{primaryDataPort, icw4Mode8086},
		{secondaryDataPort, icw4Mode8086},
	} {
		portWriteByteFn(step.port, step.val)
		ioWaitFn()
	}

	primaryOffset, secondaryOffset = primary, secondary

	*guard.Value() = allMasked
	writeMask(allMasked)

	kfmt.Printf("[pic] remapped IRQ 0-7 to vectors %d-%d, IRQ 8-15 to vectors %d-%d\n",
		primary, primary+7, secondary, secondary+7)
	return nil
}

// Enable unmasks line. Enabling a line served by the secondary controller
// also unmasks the cascade line of the primary controller.
func Enable(line uint8) *kernel.Error {
	if line >= LineCount {
		return ErrInvalidLine
	}

	guard := mask.Lock()
	defer guard.Release()

	m := guard.Value()
	*m &^= 1 << line
	if line >= 8 {
		*m &^= 1 << CascadeLine
	}
	writeMask(*m)

	return nil
}

// Disable masks line.
func Disable(line uint8) *kernel.Error {
	if line >= LineCount {
		return ErrInvalidLine
	}

	guard := mask.Lock()
	defer guard.Release()

	m := guard.Value()
	*m |= 1 << line
	writeMask(*m)

	return nil
}

// DisableAll masks every line on both controllers.
func DisableAll() {
	guard := mask.Lock()
	defer guard.Release()

	*guard.Value() = allMasked
	writeMask(allMasked)
}

// Mask returns the current mask of both controllers; bit N is set when line
// N is masked.
func Mask() uint16 {
	guard := mask.Lock()
	defer guard.Release()

	return *guard.Value()
}

// Acknowledge signals the end of interrupt processing for line. Lines served
// by the secondary controller must be acknowledged on both controllers,
// secondary first.
func Acknowledge(line uint8) *kernel.Error {
	if line >= LineCount {
		return ErrInvalidLine
	}

	if line >= 8 {
		portWriteByteFn(secondaryCommandPort, eoiCommand)
	}
	portWriteByteFn(primaryCommandPort, eoiCommand)

	return nil
}

// Vector returns the interrupt vector raised by line. Only the low 4 bits of
// line are used.
func Vector(line uint8) uint8 {
	line &= LineCount - 1
	if line < 8 {
		return primaryOffset + line
	}
	return secondaryOffset + line - 8
}

// LineForVector returns the line that raises vector. The second return
// value is false if vector is not served by either controller.
func LineForVector(vector uint8) (uint8, bool) {
	// Offsets may be as high as 248 so offset+8 would wrap.
	switch {
	case vector >= primaryOffset && vector-primaryOffset < 8:
		return vector - primaryOffset, true
	case vector >= secondaryOffset && vector-secondaryOffset < 8:
		return vector - secondaryOffset + 8, true
	default:
		return 0, false
	}
}

// Offsets returns the vector bases of the primary and secondary controller.
func Offsets() (primary, secondary uint8) {
	return primaryOffset, secondaryOffset
}

func writeMask(m uint16) {
	portWriteByteFn(primaryDataPort, uint8(m))
	portWriteByteFn(secondaryDataPort, uint8(m>>8))
}
