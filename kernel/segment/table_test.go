package segment

import (
	"encoding/binary"
	"testing"
	"time"
	"unsafe"

	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/cpu"
)

// resetSegments clears the kernel segment table state.
func resetSegments() {
	segments.Do(func(s *segmentState) { *s = segmentState{} })
}

func TestBuild(t *testing.T) {
	var ts TaskState
	tbl := Build(&ts)

	specs := []struct {
		selector uint16
		exp      Descriptor
	}{
		{NullSelector, 0},
		{0x08, 0},
		{0x10, 0},
		{0x18, 0},
		{0x20, 0},
		{KernelCodeSelector, 0x00a09a0000000000},
		{KernelDataSelector, 0x0080920000000000},
		{UserCodeSelector, 0x00a0fa0000000000},
		{UserDataSelector, 0x0080f20000000000},
	}

	for _, spec := range specs {
		if got := tbl.Entry(spec.selector); got != spec.exp {
			t.Errorf("[selector 0x%x] expected descriptor 0x%016x; got 0x%016x", spec.selector, spec.exp, got)
		}
	}

	t.Run("tss descriptor", func(t *testing.T) {
		tssAddr := uint64(uintptr(unsafe.Pointer(&ts)))
		lo, hi := tbl.Entry(TSSSelector), tbl.Entries[TSSSelector>>3+1]

		if exp := AccessPresent | AccessTSSAvailable; lo.Access() != exp {
			t.Errorf("expected access byte 0x%x; got 0x%x", exp, lo.Access())
		}

		if exp := uint32(103); lo.Limit() != exp {
			t.Errorf("expected limit %d; got %d", exp, lo.Limit())
		}

		if got := uint64(lo.Base()) | uint64(hi)<<32; got != tssAddr {
			t.Errorf("expected TSS base 0x%x; got 0x%x", tssAddr, got)
		}
	})

	if err := Validate(&tbl); err != nil {
		t.Fatalf("expected built table to be valid; got %v", err)
	}
}

func TestValidate(t *testing.T) {
	var (
		kcode = NewDescriptor(0, 0, 0x9a, FlagGranularity|FlagLongMode)
		kdata = NewDescriptor(0, 0, 0x92, FlagGranularity)
		ucode = NewDescriptor(0, 0, 0xfa, FlagGranularity|FlagLongMode)
		udata = NewDescriptor(0, 0, 0xf2, FlagGranularity)
	)

	specs := []struct {
		descr  string
		mutate func(*Table)
		expErr *kernel.Error
	}{
		{"valid", func(*Table) {}, nil},
		{"null slot in use", func(t *Table) { t.Entries[0] = kdata }, ErrNullSlotInUse},
		{"missing kernel code", func(t *Table) { t.Entries[KernelCodeSelector>>3] = 0 }, ErrMissingKernelSegment},
		{"missing kernel data", func(t *Table) { t.Entries[KernelDataSelector>>3] = 0 }, ErrMissingKernelSegment},
		{"kernel code in ring 3", func(t *Table) { t.Entries[KernelCodeSelector>>3] = ucode }, ErrMissingKernelSegment},
		{
			"kernel code without long mode",
			func(t *Table) { t.Entries[KernelCodeSelector>>3] = NewDescriptor(0, 0, 0x9a, FlagGranularity|FlagSize32) },
			ErrKernelCodeNotLong,
		},
		{"duplicate ring 0 code", func(t *Table) { t.Entries[1] = kcode }, ErrDuplicateSegment},
		{"user code without data", func(t *Table) { t.Entries[UserDataSelector>>3] = 0 }, ErrUnpairedSegment},
		{"user data without code", func(t *Table) { t.Entries[UserCodeSelector>>3] = 0 }, ErrUnpairedSegment},
		{
			"no user segments",
			func(t *Table) {
				t.Entries[UserCodeSelector>>3] = 0
				t.Entries[UserDataSelector>>3] = 0
			},
			nil,
		},
		{
			"tss high half resembling a code segment",
			func(t *Table) { t.Entries[TSSSelector>>3+1] = udata | ucode },
			nil,
		},
	}

	var ts TaskState
	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			tbl := Build(&ts)
			spec.mutate(&tbl)

			err := Validate(&tbl)
			if err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	defer func() {
		loadGDTFn = cpu.LoadGDT
		reloadSegmentsFn = cpu.ReloadSegments
		loadTRFn = cpu.LoadTaskRegister
		resetSegments()
	}()

	var (
		calls            []string
		gotBase          uint64
		gotLimit         uint16
		gotCode, gotData uint16
		gotTR            uint16
	)

	loadGDTFn = func(addr uintptr) {
		calls = append(calls, "lgdt")
		rec := (*[PointerRecordSize]byte)(unsafe.Pointer(addr))
		gotLimit = binary.LittleEndian.Uint16(rec[0:2])
		gotBase = binary.LittleEndian.Uint64(rec[2:10])
	}
	reloadSegmentsFn = func(code, data uint16) {
		calls = append(calls, "reload")
		gotCode, gotData = code, data
	}
	loadTRFn = func(sel uint16) {
		calls = append(calls, "ltr")
		gotTR = sel
	}

	t.Run("invalid table", func(t *testing.T) {
		resetSegments()
		calls = nil

		var bad Table
		if err := Load(&bad); err != ErrMissingKernelSegment {
			t.Fatalf("expected ErrMissingKernelSegment; got %v", err)
		}

		if len(calls) != 0 {
			t.Fatalf("expected no hardware calls for an invalid table; got %v", calls)
		}

		if Loaded() {
			t.Fatal("expected Loaded() to return false")
		}
	})

	t.Run("success", func(t *testing.T) {
		resetSegments()
		calls = nil

		if err := Init(); err != nil {
			t.Fatal(err)
		}

		if exp := []string{"lgdt", "reload", "ltr"}; len(calls) != len(exp) || calls[0] != exp[0] || calls[1] != exp[1] || calls[2] != exp[2] {
			t.Fatalf("expected call sequence %v; got %v", exp, calls)
		}

		var liveBase uint64
		segments.Do(func(s *segmentState) {
			liveBase = uint64(uintptr(unsafe.Pointer(&s.table.Entries[0])))
		})
		if gotBase != liveBase {
			t.Errorf("expected pointer record base 0x%x; got 0x%x", liveBase, gotBase)
		}

		if exp := uint16(Slots*8 - 1); gotLimit != exp {
			t.Errorf("expected pointer record limit %d; got %d", exp, gotLimit)
		}

		if gotCode != KernelCodeSelector || gotData != KernelDataSelector {
			t.Errorf("expected segments to be reloaded with 0x%x/0x%x; got 0x%x/0x%x", KernelCodeSelector, KernelDataSelector, gotCode, gotData)
		}

		if gotTR != TSSSelector {
			t.Errorf("expected task register to be loaded with 0x%x; got 0x%x", TSSSelector, gotTR)
		}

		if !Loaded() {
			t.Fatal("expected Loaded() to return true")
		}

		ts := TSS()
		top := ts.IST(DoubleFaultIST)
		start := uint64(uintptr(unsafe.Pointer(&doubleFaultStack[0])))

		if top%16 != 0 {
			t.Errorf("expected double fault stack top to be 16-byte aligned; got 0x%x", top)
		}

		if top <= start || top > start+doubleFaultStackSize {
			t.Errorf("expected double fault stack top 0x%x to be inside [0x%x, 0x%x]", top, start, start+doubleFaultStackSize)
		}
	})

	t.Run("reload clears tss busy bit", func(t *testing.T) {
		var ts TaskState
		tbl := Build(&ts)
		// mark busy as LTR would
		tbl.Entries[TSSSelector>>3] |= Descriptor(0x2) << 40

		if err := Load(&tbl); err != nil {
			t.Fatal(err)
		}

		if got := tbl.Entry(TSSSelector).Access() & 0xf; got != AccessTSSAvailable {
			t.Fatalf("expected TSS type 0x%x after reload; got 0x%x", AccessTSSAvailable, got)
		}
	})
}

func TestLoadedWaitsForTableUpdate(t *testing.T) {
	defer resetSegments()
	resetSegments()

	guard := segments.Lock()

	done := make(chan bool)
	go func() { done <- Loaded() }()

	select {
	case <-done:
		guard.Release()
		t.Fatal("expected Loaded to wait while the segment table is being updated")
	case <-time.After(20 * time.Millisecond):
	}

	guard.Value().loaded = true
	guard.Release()

	if !<-done {
		t.Fatal("expected Loaded to observe the completed update")
	}
}

func TestEncodePointerRecord(t *testing.T) {
	rec := EncodePointerRecord(0xffff800000102030, 0x0fff)
	exp := [PointerRecordSize]byte{0xff, 0x0f, 0x30, 0x20, 0x10, 0x00, 0x00, 0x80, 0xff, 0xff}

	if rec != exp {
		t.Fatalf("expected record % x; got % x", exp, rec)
	}
}

func TestTaskState(t *testing.T) {
	var ts TaskState

	if exp, got := uintptr(104), unsafe.Sizeof(ts); got != exp {
		t.Fatalf("expected TSS size %d; got %d", exp, got)
	}

	ts.SetRSP0(0xffff800000010000)
	if exp, got := uint64(0xffff800000010000), ts.RSP0(); got != exp {
		t.Errorf("expected RSP0 0x%x; got 0x%x", exp, got)
	}

	for index := uint8(1); index <= MaxIST; index++ {
		if err := ts.SetIST(index, uint64(index)<<40|0x1000); err != nil {
			t.Fatalf("[ist %d] unexpected error: %v", index, err)
		}
	}

	for index := uint8(1); index <= MaxIST; index++ {
		if exp, got := uint64(index)<<40|0x1000, ts.IST(index); got != exp {
			t.Errorf("[ist %d] expected 0x%x; got 0x%x", index, exp, got)
		}
	}

	// IST1 lives at byte offset 0x24.
	raw := (*[104]byte)(unsafe.Pointer(&ts))
	if exp, got := uint64(1)<<40|0x1000, binary.LittleEndian.Uint64(raw[0x24:]); got != exp {
		t.Errorf("expected IST1 at offset 0x24 to be 0x%x; got 0x%x", exp, got)
	}

	for _, index := range []uint8{0, 8} {
		if err := ts.SetIST(index, 1); err != ErrInvalidIST {
			t.Errorf("[ist %d] expected ErrInvalidIST; got %v", index, err)
		}
	}

	ts.DenyIOPorts()
	if exp, got := uint16(104), binary.LittleEndian.Uint16(raw[102:]); got != exp {
		t.Errorf("expected I/O map base %d; got %d", exp, got)
	}
}
