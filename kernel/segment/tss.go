package segment

import (
	"unsafe"

	"github.com/WebFirstLanguage/wflos/kernel"
)

const (
	// MaxIST is the number of interrupt stack table slots.
	MaxIST = 7

	// DoubleFaultIST is the interrupt stack table slot used by the double
	// fault handler so that it always runs on a known-good stack.
	DoubleFaultIST = 1

	doubleFaultStackSize = 16 * 1024
)

// TaskState is the 104-byte 64-bit task state segment. Most of its fields
// are 64-bit values located at 4-byte aligned offsets so the structure is
// modeled as an array of 32-bit words:
//
//	word  0     reserved
//	words 1-6   RSP0, RSP1, RSP2
//	words 7-8   reserved
//	words 9-22  IST1 - IST7
//	words 23-24 reserved
//	word  25    reserved (low 16 bits), I/O map base (high 16 bits)
type TaskState [26]uint32

// doubleFaultStack backs IST slot DoubleFaultIST.
var doubleFaultStack [doubleFaultStackSize]byte

// SetRSP0 sets the stack pointer loaded when the CPU switches to ring 0.
func (t *TaskState) SetRSP0(rsp uint64) {
	t.setQuad(1, rsp)
}

// RSP0 returns the ring 0 stack pointer.
func (t *TaskState) RSP0() uint64 {
	return t.quad(1)
}

// SetIST sets the top of the interrupt stack with the given index (1-7). It
// returns ErrInvalidIST for out of range indices.
func (t *TaskState) SetIST(index uint8, top uint64) *kernel.Error {
	if index < 1 || index > MaxIST {
		return ErrInvalidIST
	}

	t.setQuad(9+2*int(index-1), top)
	return nil
}

// IST returns the interrupt stack top stored at the given index (1-7) or 0
// for out of range indices.
func (t *TaskState) IST(index uint8) uint64 {
	if index < 1 || index > MaxIST {
		return 0
	}
	return t.quad(9 + 2*int(index-1))
}

// DenyIOPorts points the I/O permission map past the end of the TSS so that
// ring 3 code cannot access any port.
func (t *TaskState) DenyIOPorts() {
	t[25] = uint32(unsafe.Sizeof(*t)) << 16
}

func (t *TaskState) setQuad(word int, v uint64) {
	t[word] = uint32(v)
	t[word+1] = uint32(v >> 32)
}

func (t *TaskState) quad(word int) uint64 {
	return uint64(t[word]) | uint64(t[word+1])<<32
}

// stackTop returns the 16-byte aligned address just past the end of stack.
func stackTop(stack []byte) uint64 {
	end := uintptr(unsafe.Pointer(&stack[0])) + uintptr(len(stack))
	return uint64(end &^ 15)
}
