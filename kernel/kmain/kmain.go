package kmain

import (
	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/gate"
	"github.com/WebFirstLanguage/wflos/kernel/hal"
	"github.com/WebFirstLanguage/wflos/kernel/hal/limine"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/mm"
	"github.com/WebFirstLanguage/wflos/kernel/mm/pmm"
	"github.com/WebFirstLanguage/wflos/kernel/pic"
	"github.com/WebFirstLanguage/wflos/kernel/segment"
	"github.com/WebFirstLanguage/wflos/kernel/shell"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	panicFn            = kfmt.Panic
	registerDriversFn  = hal.RegisterDrivers
	detectHardwareFn   = hal.DetectHardware
	segmentInitFn      = segment.Init
	gateInitFn         = gate.Init
	picRemapFn         = pic.Remap
	pmmInitFn          = pmm.Init
	enableInterruptsFn = cpu.EnableInterrupts
	runShellFn         = shell.Run
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code passes the addresses of the memory map
// and HHDM responses provided by the boot loader as well as the physical
// addresses for the kernel start/end.
//
// Kmain brings the system up in the following order: the serial port (so
// that everything after it can be logged), the segment table, the vector
// table, the interrupt controllers, the display, the frame allocator and
// finally the drivers that need interrupts. Interrupts are only enabled once
// everything is in place; the shell then takes over the CPU.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(memmapResponse, hhdmResponse, kernelStart, kernelEnd uintptr) {
	limine.SetMemoryMapResponse(memmapResponse)
	limine.SetHHDMResponse(hhdmResponse)
	mm.SetHHDMOffset(uintptr(limine.HHDMOffset()))

	if err := boot(kernelStart, kernelEnd); err != nil {
		panicFn(err)
		return
	}

	runShellFn()

	// Use panicFn instead of panic to prevent the compiler from treating
	// kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

func boot(kernelStart, kernelEnd uintptr) *kernel.Error {
	var err *kernel.Error
	if err = registerDriversFn(); err != nil {
		return err
	}

	detectHardwareFn(device.DetectOrderEarly)
	kfmt.Printf("wflos %s booting\n", shell.Version)

	physBase, virtBase := limine.KernelAddress()
	kfmt.Printf("[kmain] kernel image at 0x%x (virtual 0x%x)\n", physBase, virtBase)

	if err = segmentInitFn(); err != nil {
		return err
	} else if err = gateInitFn(); err != nil {
		return err
	} else if err = picRemapFn(pic.DefaultPrimaryOffset, pic.DefaultSecondaryOffset); err != nil {
		return err
	}

	detectHardwareFn(device.DetectOrderConsole)

	if err = pmmInitFn(kernelStart, kernelEnd); err != nil {
		return err
	}

	detectHardwareFn(device.DetectOrderLast)

	enableInterruptsFn()
	kfmt.Printf("[kmain] interrupts enabled\n")
	return nil
}
