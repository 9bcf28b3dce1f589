package segment

import (
	"encoding/binary"
	"unsafe"

	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
	"github.com/WebFirstLanguage/wflos/kernel/sync"
)

// Selectors for the fixed table layout. The slots between the null
// descriptor and the kernel code segment are reserved so that the kernel
// selectors keep the values assigned by the boot loader.
const (
	NullSelector       = uint16(0x00)
	KernelCodeSelector = uint16(0x28)
	KernelDataSelector = uint16(0x30)
	UserCodeSelector   = uint16(0x38)
	UserDataSelector   = uint16(0x40)
	TSSSelector        = uint16(0x48)

	// Slots is the number of 8-byte slots in the table. The 64-bit TSS
	// descriptor occupies two slots.
	Slots = int(TSSSelector/8) + 2

	// PointerRecordSize is the size of the operand for the LGDT
	// instruction: a 16-bit limit followed by a 64-bit base address.
	PointerRecordSize = 10
)

var (
	// ErrNullSlotInUse is returned when the first table slot is not zero.
	ErrNullSlotInUse = &kernel.Error{Module: "segment", Message: "slot 0 must hold the null descriptor"}

	// ErrMissingKernelSegment is returned when the ring 0 code or data
	// descriptor is missing from its fixed slot.
	ErrMissingKernelSegment = &kernel.Error{Module: "segment", Message: "missing ring 0 code or data descriptor"}

	// ErrKernelCodeNotLong is returned when the kernel code descriptor does
	// not have the long mode flag set.
	ErrKernelCodeNotLong = &kernel.Error{Module: "segment", Message: "kernel code descriptor is not a long mode segment"}

	// ErrDuplicateSegment is returned when a ring has more than one code or
	// more than one data descriptor.
	ErrDuplicateSegment = &kernel.Error{Module: "segment", Message: "more than one code or data descriptor for the same ring"}

	// ErrUnpairedSegment is returned when a ring has a code descriptor but
	// no data descriptor or vice versa.
	ErrUnpairedSegment = &kernel.Error{Module: "segment", Message: "ring has a code descriptor without a data descriptor or vice versa"}

	// ErrInvalidIST is returned for interrupt stack indices outside 1-7.
	ErrInvalidIST = &kernel.Error{Module: "segment", Message: "interrupt stack index must be in range 1-7"}

	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	loadGDTFn        = cpu.LoadGDT
	reloadSegmentsFn = cpu.ReloadSegments
	loadTRFn         = cpu.LoadTaskRegister

	segments sync.Guarded[segmentState]
)

// Table is the segment table.
type Table struct {
	Entries [Slots]Descriptor
}

// segmentState holds the segment table used by the CPU and the task state
// segment it references. Both are only written while holding segments.
type segmentState struct {
	table         Table
	tss           TaskState
	pointerRecord [PointerRecordSize]byte
	loaded        bool
}

// Entry returns the descriptor referenced by selector. The requested
// privilege level bits of the selector are ignored.
func (t *Table) Entry(selector uint16) Descriptor {
	return t.Entries[selector>>3]
}

// SetTSS installs a 64-bit TSS descriptor for ts at TSSSelector. The
// descriptor spans two slots with the upper half of the base address in the
// second one.
func (t *Table) SetTSS(ts *TaskState) {
	base := uint64(uintptr(unsafe.Pointer(ts)))
	limit := uint32(unsafe.Sizeof(*ts) - 1)

	t.Entries[TSSSelector>>3] = NewDescriptor(uint32(base), limit, AccessPresent|AccessTSSAvailable, 0)
	t.Entries[TSSSelector>>3+1] = Descriptor(base >> 32)
}

// Build returns the kernel segment table with a TSS descriptor referencing
// ts. All code and data segments are flat; base and limit are ignored by the
// CPU in long mode.
func Build(ts *TaskState) Table {
	var t Table

	t.Entries[KernelCodeSelector>>3] = NewDescriptor(0, 0,
		AccessPresent|AccessDPL(0)|AccessSegment|AccessExecutable|AccessReadWrite,
		FlagGranularity|FlagLongMode,
	)
	t.Entries[KernelDataSelector>>3] = NewDescriptor(0, 0,
		AccessPresent|AccessDPL(0)|AccessSegment|AccessReadWrite,
		FlagGranularity,
	)
	t.Entries[UserCodeSelector>>3] = NewDescriptor(0, 0,
		AccessPresent|AccessDPL(3)|AccessSegment|AccessExecutable|AccessReadWrite,
		FlagGranularity|FlagLongMode,
	)
	t.Entries[UserDataSelector>>3] = NewDescriptor(0, 0,
		AccessPresent|AccessDPL(3)|AccessSegment|AccessReadWrite,
		FlagGranularity,
	)
	t.SetTSS(ts)

	return t
}

// Validate checks that t is well-formed: slot 0 holds the null descriptor,
// the ring 0 code and data descriptors occupy their fixed slots, the kernel
// code segment is a long mode segment and every ring in use has exactly one
// code and one data descriptor.
func Validate(t *Table) *kernel.Error {
	if t.Entries[0] != 0 {
		return ErrNullSlotInUse
	}

	kcode, kdata := t.Entry(KernelCodeSelector), t.Entry(KernelDataSelector)
	if !kcode.IsCode() || kcode.Ring() != 0 || !kdata.IsData() || kdata.Ring() != 0 {
		return ErrMissingKernelSegment
	}

	if kcode.Flags()&FlagLongMode == 0 {
		return ErrKernelCodeNotLong
	}

	var codeCount, dataCount [4]int
	for slot := 1; slot < Slots; slot++ {
		d := t.Entries[slot]
		switch {
		case d.IsCode():
			codeCount[d.Ring()]++
		case d.IsData():
			dataCount[d.Ring()]++
		case d.Present() && d.Access()&AccessSegment == 0 && d.Access()&0xd == AccessTSSAvailable:
			// 64-bit TSS (available or busy); its upper half lives in
			// the next slot and must not be interpreted on its own.
			slot++
		}
	}

	for ring := range codeCount {
		switch {
		case codeCount[ring] > 1 || dataCount[ring] > 1:
			return ErrDuplicateSegment
		case codeCount[ring] != dataCount[ring]:
			return ErrUnpairedSegment
		}
	}

	return nil
}

// Load validates t, makes it the active segment table, reloads the code and
// data segment registers with the kernel selectors and loads the task
// register. t must stay mapped at the same address while it is active.
func Load(t *Table) *kernel.Error {
	guard := segments.Lock()
	defer guard.Release()

	return guard.Value().load(t)
}

func (s *segmentState) load(t *Table) *kernel.Error {
	if err := Validate(t); err != nil {
		return err
	}

	encodePointerRecord(&s.pointerRecord, uintptr(unsafe.Pointer(&t.Entries[0])), uint16(unsafe.Sizeof(t.Entries)-1))
	loadGDTFn(uintptr(unsafe.Pointer(&s.pointerRecord[0])))
	reloadSegmentsFn(KernelCodeSelector, KernelDataSelector)

	// LTR marks the TSS descriptor busy; reset the type in case the table
	// is reloaded.
	if t.Entry(TSSSelector).Present() {
		t.Entries[TSSSelector>>3] = t.Entries[TSSSelector>>3]&^(Descriptor(0xf)<<40) | Descriptor(AccessTSSAvailable)<<40
		loadTRFn(TSSSelector)
	}

	s.loaded = true
	return nil
}

// Loaded returns true once a segment table has been successfully loaded.
// The vector table must not be loaded before this returns true.
func Loaded() bool {
	guard := segments.Lock()
	defer guard.Release()

	return guard.Value().loaded
}

// TSS returns a copy of the task state segment referenced by the kernel
// segment table.
func TSS() TaskState {
	guard := segments.Lock()
	defer guard.Release()

	return guard.Value().tss
}

// Init builds and loads the kernel segment table.
func Init() *kernel.Error {
	if err := loadKernelTable(); err != nil {
		return err
	}

	ts := TSS()
	kfmt.Printf("[segment] table loaded: code 0x%x, data 0x%x, tss 0x%x (ist%d top 0x%16x)\n",
		KernelCodeSelector, KernelDataSelector, TSSSelector, DoubleFaultIST, ts.IST(DoubleFaultIST))
	return nil
}

// loadKernelTable resets the TSS, rebuilds the kernel segment table and
// loads it while holding the segment guard.
func loadKernelTable() *kernel.Error {
	guard := segments.Lock()
	defer guard.Release()

	state := guard.Value()
	state.tss = TaskState{}
	if err := state.tss.SetIST(DoubleFaultIST, stackTop(doubleFaultStack[:])); err != nil {
		return err
	}
	state.tss.DenyIOPorts()
	state.table = Build(&state.tss)

	return state.load(&state.table)
}

// encodePointerRecord writes the operand of LGDT/LIDT into rec.
func encodePointerRecord(rec *[PointerRecordSize]byte, base uintptr, limit uint16) {
	binary.LittleEndian.PutUint16(rec[0:2], limit)
	binary.LittleEndian.PutUint64(rec[2:10], uint64(base))
}

// EncodePointerRecord returns the 10-byte LGDT/LIDT operand for a table
// located at base whose last valid byte is at base+limit.
func EncodePointerRecord(base uintptr, limit uint16) [PointerRecordSize]byte {
	var rec [PointerRecordSize]byte
	encodePointerRecord(&rec, base, limit)
	return rec
}
