package gate

import "unsafe"

// gateEntryTable returns the address of a table with the address of each
// vector's entry stub. It is implemented in gate_entries_amd64.s, which is
// generated by tools/gengates.
func gateEntryTable() uintptr

// entryAddress returns the address of the entry stub for vector.
func entryAddress(vector uint8) uintptr {
	return *(*uintptr)(unsafe.Pointer(gateEntryTable() + uintptr(vector)*8))
}
