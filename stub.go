package main

import (
	"github.com/WebFirstLanguage/wflos/kernel/hal/limine"
	"github.com/WebFirstLanguage/wflos/kernel/kmain"
)

var kernelStart, kernelEnd uintptr

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code.
//
// Global variables are passed as arguments to Kmain to prevent the compiler
// from inlining the actual call and removing Kmain from the generated .o file.
// Referencing the boot loader requests also keeps them in the image so the
// boot loader can find and answer them.
func main() {
	kmain.Kmain(limine.MemoryMapRequest.Response, limine.HHDMRequest.Response, kernelStart, kernelEnd)
}
