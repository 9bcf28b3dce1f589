// Package device defines the interface implemented by device drivers and the
// registry that the hal package uses to probe for hardware.
package device

import (
	"io"

	"github.com/WebFirstLanguage/wflos/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it or nil if the hardware is
// not present.
type ProbeFn func() Driver

// DetectOrder specifies when a driver is probed relative to the kernel
// bring-up sequence. Drivers with lower values are probed first.
type DetectOrder int8

const (
	// DetectOrderEarly drivers are probed before the descriptor tables
	// are loaded. They must not depend on interrupts.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderConsole drivers are probed once the early drivers are
	// up and the kernel log has a sink.
	DetectOrderConsole DetectOrder = -64

	// DetectOrderInterrupts drivers are probed after the interrupt
	// controller has been remapped and can bind interrupt handlers.
	DetectOrderInterrupts DetectOrder = 0

	// DetectOrderLast drivers are probed last.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver registration entry.
type DriverInfo struct {
	// Order specifies at which stage of the boot sequence the driver's
	// probe function is invoked.
	Order DetectOrder

	// Probe is the driver's probe function.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

// MaxDrivers is the number of drivers that can be registered.
const MaxDrivers = 16

var (
	registeredDrivers [MaxDrivers]*DriverInfo
	driverCount       int

	errTooManyDrivers = &kernel.Error{Module: "device", Message: "driver registry is full"}
)

// RegisterDriver adds the supplied driver info entry to the registry. The
// registry is kept sorted by detection order; entries with the same order
// keep their registration order.
func RegisterDriver(info *DriverInfo) *kernel.Error {
	if driverCount == MaxDrivers {
		return errTooManyDrivers
	}

	index := driverCount
	for ; index > 0 && registeredDrivers[index-1].Order > info.Order; index-- {
		registeredDrivers[index] = registeredDrivers[index-1]
	}
	registeredDrivers[index] = info
	driverCount++

	return nil
}

// DriverList returns the registered drivers sorted by detection order.
func DriverList() DriverInfoList {
	return registeredDrivers[:driverCount]
}
