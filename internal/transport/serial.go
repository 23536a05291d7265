//go:build linux

package transport

import (
	"fmt"
	"time"

	serial "github.com/daedaluz/goserial"
)

// DefaultBaud is the speed the original debugger falls back to (the
// "maximum speed" tuning in serio_init() is left commented out there);
// 9600 is the conservative default that works on any real or virtual
// Amiga serial port.
const DefaultBaud = serial.B9600

// OpenSerial opens a real serial device for the remote command loop,
// configuring it raw (8N1, no flow control) the way the original
// debugger's serio_init() configures the Amiga serial.device before
// layering SLIP framing on top (original_source/serio.c).
func OpenSerial(device string, baud serial.CFlag) (*Framer, func() error, error) {
	port, err := serial.Open(device, serial.NewOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("transport: could not open %q: %w", device, err)
	}
	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("transport: could not read attrs of %q: %w", device, err)
	}
	attrs.MakeRaw()
	attrs.SetSpeed(baud)
	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("transport: could not configure %q: %w", device, err)
	}
	port.SetReadTimeout(10 * time.Second)
	return New(port), port.Close, nil
}
