package cpu

var (
	cpuidFn         = ID
	portWriteByteFn = PortWriteByte
)

const (
	// ioWaitPort is an unused port (POST diagnostics) that can be written
	// to in order to give slow devices enough time to react to a command.
	ioWaitPort = 0x80

	// FlagInterruptEnable is the IF bit of the RFLAGS register.
	FlagInterruptEnable = uint64(1 << 9)
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// SaveAndDisableInterrupts disables interrupt handling and returns the
// RFLAGS value that was active before the call. The returned value should be
// passed to RestoreInterrupts when the critical section ends.
func SaveAndDisableInterrupts() uint64

// RestoreInterrupts restores the RFLAGS value returned by a previous call to
// SaveAndDisableInterrupts. Interrupts are re-enabled only if they were
// enabled when the flags were saved.
func RestoreInterrupts(flags uint64)

// Halt disables interrupts and stops instruction execution. Calls to Halt
// never return.
func Halt()

// WaitForInterrupt enables interrupts and idles the CPU until the next
// interrupt arrives.
func WaitForInterrupt()

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// LoadGDT loads the global descriptor table register from the 10-byte
// pointer record located at descriptorAddr.
func LoadGDT(descriptorAddr uintptr)

// LoadIDT loads the interrupt descriptor table register from the 10-byte
// pointer record located at descriptorAddr.
func LoadIDT(descriptorAddr uintptr)

// LoadTaskRegister loads the task register with the supplied TSS selector.
func LoadTaskRegister(selector uint16)

// ReloadSegments reloads CS with the code selector (via a far return) and
// DS, ES and SS with the data selector. It must be called after LoadGDT.
func ReloadSegments(code, data uint16)

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Vendor returns the 12-byte vendor identification string reported by
// CPUID leaf 0 (e.g. "GenuineIntel").
func Vendor() [12]byte {
	var vendor [12]byte
	_, ebx, ecx, edx := cpuidFn(0)

	// The vendor string is stored in EBX, EDX, ECX order.
	for i, reg := range [3]uint32{ebx, edx, ecx} {
		vendor[i*4] = byte(reg)
		vendor[i*4+1] = byte(reg >> 8)
		vendor[i*4+2] = byte(reg >> 16)
		vendor[i*4+3] = byte(reg >> 24)
	}

	return vendor
}

// IOWait blocks for a short period of time by writing to an unused port.
func IOWait() {
	portWriteByteFn(ioWaitPort, 0)
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
