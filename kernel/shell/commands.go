package shell

import (
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/gate"
	"github.com/WebFirstLanguage/wflos/kernel/hal"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/mm"
	"github.com/WebFirstLanguage/wflos/kernel/mm/pmm"
	"github.com/WebFirstLanguage/wflos/kernel/pic"
)

// Version is reported by the version command.
const Version = "0.5.0"

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	statsFn         = pmm.Stats
	allocFrameFn    = pmm.AllocFrame
	freeFrameFn     = pmm.FreeFrame
	cpuVendorFn     = cpu.Vendor
	haltFn          = cpu.Halt
	disableIntrFn   = cpu.DisableInterrupts
	activeTTYFn     = hal.ActiveTTY
	activeDriversFn = hal.ActiveDrivers

	vendorBuf [12]byte
)

// Execute runs a parsed command.
func Execute(cmd Command) {
	switch cmd.ID {
	case CmdHelp:
		cmdHelp()
	case CmdClear:
		cmdClear()
	case CmdEcho:
		kfmt.Printf("%s\n", cmd.Args)
	case CmdVersion:
		kfmt.Printf("wflos %s (amd64)\n", Version)
	case CmdMemInfo:
		cmdMemInfo()
	case CmdAlloc:
		cmdAlloc()
	case CmdFree:
		cmdFree(cmd.Args)
	case CmdIRQ:
		cmdIRQ()
	case CmdPIC:
		cmdPIC()
	case CmdCPU:
		vendorBuf = cpuVendorFn()
		kfmt.Printf("vendor: %s\n", vendorBuf[:])
	case CmdDrivers:
		cmdDrivers()
	case CmdHalt:
		kfmt.Printf("halting system\n")
		disableIntrFn()
		haltFn()
	}
}

func cmdHelp() {
	kfmt.Printf("available commands:\n")
	for i := range commandTable {
		if commandTable[i].usage != "" {
			kfmt.Printf("  %s\n", commandTable[i].usage)
		}
	}
}

func cmdClear() {
	term := activeTTYFn()
	if term == nil {
		kfmt.Printf("no terminal attached\n")
		return
	}

	term.Clear()
}

func cmdMemInfo() {
	total, used, free := statsFn()
	kb := uint64(mm.PageSize >> 10)

	kfmt.Printf("total frames: %d (%d KB)\n", total, total*kb)
	kfmt.Printf("used frames:  %d (%d KB)\n", used, used*kb)
	kfmt.Printf("free frames:  %d (%d KB)\n", free, free*kb)
	kfmt.Printf("frame size: %d KB\n", kb)
}

func cmdAlloc() {
	frame, err := allocFrameFn()
	if err != nil {
		kfmt.Printf("alloc: %s\n", err.Message)
		return
	}

	kfmt.Printf("allocated frame %d at 0x%x\n", uint64(frame), uint64(frame.Address()))
}

func cmdFree(args []byte) {
	addr, ok := parseHex(args)
	if !ok {
		kfmt.Printf("free: expected a hex frame address\n")
		return
	}

	if addr&uint64(mm.PageSize-1) != 0 {
		kfmt.Printf("free: address 0x%x is not page aligned\n", addr)
		return
	}

	frame := mm.FrameFromAddress(uintptr(addr))
	if err := freeFrameFn(frame); err != nil {
		kfmt.Printf("free: %s\n", err.Message)
		return
	}

	kfmt.Printf("released frame %d\n", uint64(frame))
}

func cmdIRQ() {
	kfmt.Printf("line vector     raised errors\n")
	for line := uint8(0); line < pic.LineCount; line++ {
		vector := pic.Vector(line)
		if !gate.Bound(vector) {
			continue
		}

		kfmt.Printf("%4d %6d %10d %6d\n", line, vector, gate.Count(vector), gate.DeviceErrors(vector))
	}

	for vector := 0; vector < gate.ExceptionCount; vector++ {
		if count := gate.Count(uint8(vector)); count != 0 {
			kfmt.Printf("exception %d (%s): %d\n", vector, gate.ExceptionName(uint8(vector)), count)
		}
	}
}

func cmdPIC() {
	primary, secondary := pic.Offsets()
	kfmt.Printf("primary offset: %d, secondary offset: %d\n", primary, secondary)
	kfmt.Printf("mask: 0x%4x\n", pic.Mask())
}

func cmdDrivers() {
	for _, drv := range activeDriversFn() {
		major, minor, patch := drv.DriverVersion()
		kfmt.Printf("%s %d.%d.%d\n", drv.DriverName(), major, minor, patch)
	}
}
