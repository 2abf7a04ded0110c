// Package serial implements the HotSync serial cradle transport: a plain
// RS-232 (or USB-to-serial) link running at one of a small set of
// negotiated baud rates, framed above by CMP/SLP/PADP. The wrapper here
// mirrors the teacher's facebook-time/sa53fw/mac package: open the port
// with go.bug.st/serial, expose Read/Write, do the device-specific
// exchange on top.
package serial

import (
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate HotSync cradles start a CMP handshake at;
// CMP negotiation may raise it afterward (spec.md §4.4).
const DefaultBaudRate = 9600

// Port wraps an open serial connection to a HotSync cradle.
type Port struct {
	device string
	port   serial.Port
}

// Open opens device at baud with 8N1 framing, the configuration every
// HotSync serial cradle uses.
func Open(device string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}
	return &Port{device: device, port: p}, nil
}

// SetBaudRate reconfigures the already-open port, used after a CMP
// handshake negotiates a rate higher than DefaultBaudRate.
func (p *Port) SetBaudRate(baud int) error {
	if err := p.port.SetMode(&serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}); err != nil {
		return fmt.Errorf("serial: set baud rate %d on %s: %w", baud, p.device, err)
	}
	return nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.port.Write(b) }

func (p *Port) Close() error {
	return p.port.Close()
}

// ListPorts enumerates serial device nodes present on the system,
// used by hotsyncctl/hotsyncd to offer an interactive device picker.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial: list ports: %w", err)
	}
	return ports, nil
}
