package radarlink

import (
	"io"

	"go.bug.st/serial"
)

// RadarPorter defines the minimal interface needed for the radar's serial
// link. This abstraction enables unit testing without real radar hardware.
type RadarPorter interface {
	io.ReadWriter
	io.Closer
}

// PortMode holds the serial parameters for the radar link.
type PortMode struct {
	BaudRate int
	DataBits int
}

// DefaultPortMode returns the mode the ranging sensor ships with.
func DefaultPortMode() PortMode {
	return PortMode{BaudRate: 115200, DataBits: 8}
}

// OpenSerialPort opens a real serial port at path for the radar link.
func OpenSerialPort(path string, mode PortMode) (RadarPorter, error) {
	return serial.Open(path, &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}
