package kernel

import "unsafe"

// Memset sets size bytes at the given address to the supplied value. Instead
// of looping over every byte, the first byte is set and then log2(size) copy
// calls double the initialized prefix until the whole region is covered. Frame
// addresses are always page aligned so the copies run at full width.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
