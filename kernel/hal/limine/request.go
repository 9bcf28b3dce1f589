package limine

import "unsafe"

// Request is a boot loader request. The boot loader scans the kernel image
// for requests and fills in the Response field with the address of the
// matching response before jumping to the kernel entry point.
type Request struct {
	ID       [4]uint64
	Revision uint64
	Response uintptr
}

const (
	commonMagic0 = 0xc7b1dd30df4c8b88
	commonMagic1 = 0x0a82e883a194f07b
)

var (
	// MemoryMapRequest asks for the physical memory map.
	MemoryMapRequest = Request{ID: [4]uint64{commonMagic0, commonMagic1, 0x67cf3d9d378a806f, 0xe304acdfc50c3c62}}

	// HHDMRequest asks for the higher-half direct map offset.
	HHDMRequest = Request{ID: [4]uint64{commonMagic0, commonMagic1, 0x48dcf1cb8ad2b852, 0x63984e959a98244b}}

	// KernelAddressRequest asks for the physical and virtual load address
	// of the kernel image.
	KernelAddressRequest = Request{ID: [4]uint64{commonMagic0, commonMagic1, 0x71ba76863cc55f63, 0xb2644a48c516a487}}
)

type kernelAddressResponse struct {
	revision     uint64
	physicalBase uint64
	virtualBase  uint64
}

// KernelAddress returns the physical and virtual base address of the kernel
// image from the response to KernelAddressRequest. Both values are 0 if the
// boot loader did not answer the request.
func KernelAddress() (physBase, virtBase uint64) {
	if KernelAddressRequest.Response == 0 {
		return 0, 0
	}

	resp := (*kernelAddressResponse)(unsafe.Pointer(KernelAddressRequest.Response))
	return resp.physicalBase, resp.virtualBase
}
