// Implements the NetSync framing used over TCP and over USB devices that
// advertise the NetSync protocol stack: length-prefixed messages with no
// per-packet acknowledgement or retransmission.
package netsync

import (
	"encoding/binary"
	"fmt"
	"io"
)

// header is the 6-byte envelope preceding every NetSync message body.
type header struct {
	DataType uint8
	TxID     uint8
	BodyLen  uint32
}

const headerSize = 6

// Codec reads and writes whole NetSync messages over an arbitrary
// byte-duplex. It keeps no per-direction state beyond an incrementing
// transaction ID, matching spec.md §4.1's "no ack, no retransmit" model.
type Codec struct {
	rw   io.ReadWriter
	txID uint8
}

func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw}
}

// Send writes one message: a 6-byte header (data type, transaction ID,
// 4-byte big-endian body length) followed by the body.
func (c *Codec) Send(dataType uint8, body []byte) error {
	hdr := make([]byte, headerSize)
	hdr[0] = dataType
	hdr[1] = c.txID
	c.txID++
	binary.BigEndian.PutUint32(hdr[2:6], uint32(len(body)))
	if _, err := c.rw.Write(hdr); err != nil {
		return fmt.Errorf("netsync: write header: %w", err)
	}
	if _, err := c.rw.Write(body); err != nil {
		return fmt.Errorf("netsync: write body: %w", err)
	}
	return nil
}

// Receive reads one complete message and returns its body.
func (c *Codec) Receive() ([]byte, error) {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(c.rw, hdr); err != nil {
		return nil, fmt.Errorf("netsync: read header: %w", err)
	}
	bodyLen := binary.BigEndian.Uint32(hdr[2:6])
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return nil, fmt.Errorf("netsync: read body: %w", err)
	}
	return body, nil
}

// Preamble is the fixed handshake packet exchanged byte-for-byte in both
// directions at the start of a NetSync session (spec.md §4.4).
type Preamble struct {
	Magic        [2]byte // 0x90, 0x01
	VersionMajor uint8
	VersionMinor uint8
	Padding      [4]byte
}

var DefaultPreamble = Preamble{Magic: [2]byte{0x90, 0x01}, VersionMajor: 1, VersionMinor: 0}

func (p Preamble) Encode() []byte {
	b := make([]byte, 8)
	b[0], b[1] = p.Magic[0], p.Magic[1]
	b[2] = p.VersionMajor
	b[3] = p.VersionMinor
	copy(b[4:8], p.Padding[:])
	return b
}

func DecodePreamble(b []byte) (Preamble, error) {
	if len(b) < 8 {
		return Preamble{}, fmt.Errorf("netsync: short preamble (%d bytes)", len(b))
	}
	var p Preamble
	p.Magic[0], p.Magic[1] = b[0], b[1]
	p.VersionMajor = b[2]
	p.VersionMinor = b[3]
	copy(p.Padding[:], b[4:8])
	return p, nil
}

// ExchangePreamble writes want's preamble and reads the peer's, returning an
// error if the peer's bytes don't match byte-for-byte, as required by
// spec.md §4.4.
func ExchangePreamble(rw io.ReadWriter, want Preamble) error {
	if _, err := rw.Write(want.Encode()); err != nil {
		return fmt.Errorf("netsync: send preamble: %w", err)
	}
	got := make([]byte, 8)
	if _, err := io.ReadFull(rw, got); err != nil {
		return fmt.Errorf("netsync: receive preamble: %w", err)
	}
	for i, b := range want.Encode() {
		if got[i] != b {
			return fmt.Errorf("netsync: preamble mismatch at byte %d: got %#x want %#x", i, got[i], b)
		}
	}
	return nil
}
