package gate

// Vector numbers of the CPU exceptions that the kernel refers to by name.
const (
	DivideByZero               = uint8(0)
	Debug                      = uint8(1)
	NMI                        = uint8(2)
	Breakpoint                 = uint8(3)
	Overflow                   = uint8(4)
	BoundRangeExceeded         = uint8(5)
	InvalidOpcode              = uint8(6)
	DeviceNotAvailable         = uint8(7)
	DoubleFault                = uint8(8)
	InvalidTSS                 = uint8(10)
	SegmentNotPresent          = uint8(11)
	StackSegmentFault          = uint8(12)
	GPFException               = uint8(13)
	PageFaultException         = uint8(14)
	FloatingPointException     = uint8(16)
	AlignmentCheck             = uint8(17)
	MachineCheck               = uint8(18)
	SIMDFloatingPointException = uint8(19)
	VirtualizationException    = uint8(20)
	ControlProtection          = uint8(21)
	HypervisorInjection        = uint8(28)
	VMMCommunication           = uint8(29)
	SecurityException          = uint8(30)

	// ExceptionCount is the number of vectors reserved for CPU exceptions.
	ExceptionCount = 32

	// VectorCount is the number of entries in the vector table.
	VectorCount = 256
)

var exceptionNames = [ExceptionCount]string{
	DivideByZero:               "divide error",
	Debug:                      "debug",
	NMI:                        "non-maskable interrupt",
	Breakpoint:                 "breakpoint",
	Overflow:                   "overflow",
	BoundRangeExceeded:         "bound range exceeded",
	InvalidOpcode:              "invalid opcode",
	DeviceNotAvailable:         "device not available",
	DoubleFault:                "double fault",
	9:                          "coprocessor segment overrun",
	InvalidTSS:                 "invalid TSS",
	SegmentNotPresent:          "segment not present",
	StackSegmentFault:          "stack-segment fault",
	GPFException:               "general protection fault",
	PageFaultException:         "page fault",
	FloatingPointException:     "x87 floating-point exception",
	AlignmentCheck:             "alignment check",
	MachineCheck:               "machine check",
	SIMDFloatingPointException: "SIMD floating-point exception",
	VirtualizationException:    "virtualization exception",
	ControlProtection:          "control protection exception",
	HypervisorInjection:        "hypervisor injection exception",
	VMMCommunication:           "VMM communication exception",
	SecurityException:          "security exception",
}

// ExceptionName returns a human readable name for vector.
func ExceptionName(vector uint8) string {
	switch {
	case vector >= ExceptionCount:
		return "device interrupt"
	case exceptionNames[vector] == "":
		return "reserved"
	default:
		return exceptionNames[vector]
	}
}

// HasErrorCode returns true if the CPU pushes an error code when raising
// exception vector.
func HasErrorCode(vector uint8) bool {
	switch vector {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GPFException, PageFaultException, AlignmentCheck, ControlProtection,
		VMMCommunication, SecurityException:
		return true
	}
	return false
}
