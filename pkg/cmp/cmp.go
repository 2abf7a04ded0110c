// Implements the HotSync Connection Management Protocol (CMP), a one-shot
// parameter negotiation exchanged once at the start of a serial or
// USB-serial session, before DLP begins.
package cmp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type PacketType uint8

const (
	TypeWakeup   PacketType = 0x01
	TypeInit     PacketType = 0x02
	TypeAbort    PacketType = 0x03
	TypeExtended PacketType = 0x04
)

// Packet is a single CMP exchange: type, protocol version, flags and a
// proposed baud rate (only meaningful for Init/Wakeup).
type Packet struct {
	Type         PacketType
	VersionMajor uint8
	VersionMinor uint8
	Flags        uint8
	BaudRate     uint32
}

const wireSize = 10

var ErrMalformed = errors.New("cmp: malformed packet")

// Encode serializes a Packet to its fixed 10-byte wire form.
func Encode(p Packet) []byte {
	b := make([]byte, wireSize)
	b[0] = uint8(p.Type)
	b[1] = p.VersionMajor
	b[2] = p.VersionMinor
	b[3] = p.Flags
	binary.BigEndian.PutUint32(b[4:8], p.BaudRate)
	// b[8:10] reserved, left zero
	return b
}

// Decode parses a Packet from its fixed wire form.
func Decode(b []byte) (Packet, error) {
	if len(b) < wireSize {
		return Packet{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformed, len(b), wireSize)
	}
	return Packet{
		Type:         PacketType(b[0]),
		VersionMajor: b[1],
		VersionMinor: b[2],
		Flags:        b[3],
		BaudRate:     binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// MessageExchanger is the minimal duplex CMP needs: send one whole message,
// receive one whole message. An SLP+PADP stack naturally implements this
// (CMP rides over the same socket 3<->3 channel DLP will use once the
// handshake completes), but CMP itself performs no retransmission: a
// timeout or malformed reply is fatal to the handshake and is the caller's
// responsibility to surface as a session-ending error.
type MessageExchanger interface {
	Send([]byte) error
	Receive() ([]byte, error)
}

// Handshake performs the wakeup-then-init exchange described in
// spec.md §4.4: the device proposes parameters via Wakeup, the host
// accepts them by echoing an Init packet back, with no negotiation beyond
// that echo.
func Handshake(x MessageExchanger) (Packet, error) {
	raw, err := x.Receive()
	if err != nil {
		return Packet{}, fmt.Errorf("cmp: receive wakeup: %w", err)
	}
	wakeup, err := Decode(raw)
	if err != nil {
		return Packet{}, err
	}
	if wakeup.Type != TypeWakeup {
		return Packet{}, fmt.Errorf("%w: expected wakeup, got type %d", ErrMalformed, wakeup.Type)
	}

	initPkt := Packet{
		Type:         TypeInit,
		VersionMajor: wakeup.VersionMajor,
		VersionMinor: wakeup.VersionMinor,
		BaudRate:     wakeup.BaudRate,
	}
	if err := x.Send(Encode(initPkt)); err != nil {
		return Packet{}, fmt.Errorf("cmp: send init: %w", err)
	}
	return wakeup, nil
}
