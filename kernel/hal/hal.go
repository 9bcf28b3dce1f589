// Package hal probes for the hardware supported by the kernel and wires the
// detected devices to the kernel log.
package hal

import (
	"io"

	"github.com/WebFirstLanguage/wflos/device"
	"github.com/WebFirstLanguage/wflos/device/ps2"
	"github.com/WebFirstLanguage/wflos/device/serial"
	"github.com/WebFirstLanguage/wflos/device/tty"
	"github.com/WebFirstLanguage/wflos/device/video/console"
	"github.com/WebFirstLanguage/wflos/kernel"
	"github.com/WebFirstLanguage/wflos/kernel/kfmt"
)

const maxSinks = 4

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeConsole console.Device
	activeTTY     tty.Device

	// activeDrivers tracks all initialized device drivers.
	activeDrivers [device.MaxDrivers]device.Driver
	driverCount   int

	// probedCount is the number of registry entries that have already
	// been probed.
	probedCount int
}

// logFanout copies kernel log output to every registered sink.
type logFanout struct {
	sinks [maxSinks]io.Writer
	count int
}

func (f *logFanout) add(w io.Writer) {
	for i := 0; i < f.count; i++ {
		if f.sinks[i] == w {
			return
		}
	}

	if f.count < maxSinks {
		f.sinks[f.count] = w
		f.count++
	}
}

// Write implements io.Writer. A failing sink does not prevent the output
// from reaching the remaining sinks.
func (f *logFanout) Write(p []byte) (int, error) {
	var firstErr error
	for i := 0; i < f.count; i++ {
		if _, err := f.sinks[i].Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return len(p), firstErr
}

// prefixBuffer is a fixed-size io.Writer used for rendering log prefixes.
type prefixBuffer struct {
	buf [64]byte
	len int
}

func (b *prefixBuffer) Write(p []byte) (int, error) {
	n := copy(b.buf[b.len:], p)
	b.len += n
	return n, nil
}

func (b *prefixBuffer) Bytes() []byte { return b.buf[:b.len] }

func (b *prefixBuffer) Reset() { b.len = 0 }

var (
	devices managedDevices
	logSink logFanout
	strBuf  prefixBuffer

	// probeLog prefixes the output of driver init code. It lives outside
	// probe since drivers receive it through an interface.
	probeLog kfmt.PrefixWriter

	// builtinDrivers lists the drivers compiled into the kernel.
	builtinDrivers = [...]*device.DriverInfo{
		&serial.DriverInfo,
		&console.DriverInfo,
		&tty.DriverInfo,
		&ps2.DriverInfo,
	}

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	driverListFn    = device.DriverList
	setOutputSinkFn = kfmt.SetOutputSink
)

// RegisterDrivers adds the drivers compiled into the kernel to the device
// registry.
func RegisterDrivers() *kernel.Error {
	for _, info := range builtinDrivers {
		if err := device.RegisterDriver(info); err != nil {
			return err
		}
	}

	return nil
}

// ActiveTTY returns the currently active TTY or nil if no TTY is attached to
// a console.
func ActiveTTY() tty.Device {
	return devices.activeTTY
}

// ActiveDrivers returns the successfully initialized drivers in the order
// they were initialized.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers[:devices.driverCount]
}

// DetectHardware probes the registered drivers whose detection order is not
// greater than upTo and initializes the appropriate drivers. Drivers that
// were probed by a previous call are skipped. The kernel calls it once per
// boot stage so that drivers only run once the services they need are up.
func DetectHardware(upTo device.DetectOrder) {
	drivers := driverListFn()
	for ; devices.probedCount < len(drivers) && drivers[devices.probedCount].Order <= upTo; devices.probedCount++ {
		probe(drivers[devices.probedCount])
	}
}

// probe executes the probe function for a driver and invokes onDriverInit
// if the driver is successfully initialized.
func probe(info *device.DriverInfo) {
	drv := info.Probe()
	if drv == nil {
		return
	}

	strBuf.Reset()
	major, minor, patch := drv.DriverVersion()
	kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
	probeLog = kfmt.PrefixWriter{Sink: kfmt.Output(), Prefix: strBuf.Bytes()}

	if err := drv.DriverInit(&probeLog); err != nil {
		kfmt.Fprintf(&probeLog, "init failed: %s\n", err.Message)
		return
	}

	kfmt.Fprintf(&probeLog, "initialized\n")
	onDriverInit(drv)

	if devices.driverCount < len(devices.activeDrivers) {
		devices.activeDrivers[devices.driverCount] = drv
		devices.driverCount++
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case console.Device:
		if devices.activeConsole != nil {
			return
		}

		devices.activeConsole = drvImpl
		if devices.activeTTY != nil {
			linkTTYToConsole()
		}
	case tty.Device:
		if devices.activeTTY != nil {
			return
		}

		devices.activeTTY = drvImpl
		if devices.activeConsole != nil {
			linkTTYToConsole()
		}
	case io.Writer:
		// Character devices such as serial ports mirror the kernel log.
		addLogSink(drvImpl)
	}
}

// linkTTYToConsole connects the active TTY device to the active console device
// and mirrors the kernel log to it.
func linkTTYToConsole() {
	devices.activeTTY.AttachTo(devices.activeConsole)
	addLogSink(devices.activeTTY)
}

func addLogSink(w io.Writer) {
	logSink.add(w)
	setOutputSinkFn(&logSink)
}
