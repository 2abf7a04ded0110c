// Implements the HotSync Serial Link Protocol (SLP) framing layer.
package slp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
)

// PacketType identifies the kind of payload an SLP frame carries.
type PacketType uint8

const (
	TypeRaw      PacketType = 0x00
	TypePADP     PacketType = 0x02
	TypeLoopback PacketType = 0x03
)

var preamble = [3]byte{0xBE, 0xEF, 0xED}

var (
	ErrBadPreamble  = errors.New("slp: bad preamble")
	ErrHeaderChecksum = errors.New("slp: bad header checksum")
	ErrBadCRC       = errors.New("slp: bad trailing crc")
	ErrBodyTooLarge = errors.New("slp: body exceeds 65535 bytes")
)

// Frame is a single SLP datagram.
type Frame struct {
	DestSocket uint8
	SrcSocket  uint8
	Type       PacketType
	Body       []byte
}

// header is the fixed 6-byte SLP header (excluding the 3-byte preamble):
// destination socket, source socket, packet type, 2-byte body length, and
// the 1-byte header checksum.
type header struct {
	Dest     uint8
	Src      uint8
	Type     uint8
	BodySize uint16
	Checksum uint8
}

// crc16 implements the CCITT-variant CRC-16 used by Palm OS SLP frames
// (poly 0x1021, initial value 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func headerChecksum(hdr []byte) uint8 {
	var sum uint8
	for _, b := range hdr {
		sum += b
	}
	return sum
}

// Encode serializes a Frame to its wire representation, including preamble,
// header checksum and trailing CRC-16.
func Encode(f Frame) ([]byte, error) {
	if len(f.Body) > 0xFFFF {
		return nil, ErrBodyTooLarge
	}
	buf := &bytes.Buffer{}
	buf.Write(preamble[:])

	hdrBytes := make([]byte, 5)
	hdrBytes[0] = f.DestSocket
	hdrBytes[1] = f.SrcSocket
	hdrBytes[2] = uint8(f.Type)
	binary.BigEndian.PutUint16(hdrBytes[3:5], uint16(len(f.Body)))
	hdrBytes = append(hdrBytes, headerChecksum(hdrBytes))
	buf.Write(hdrBytes)
	buf.Write(f.Body)

	crc := crc16(buf.Bytes()[len(preamble):])
	var crcBytes [2]byte
	binary.BigEndian.PutUint16(crcBytes[:], crc)
	buf.Write(crcBytes[:])
	return buf.Bytes(), nil
}

// Decoder reads a byte stream and yields whole SLP frames, resynchronizing
// on the 3-byte preamble after any framing error.
type Decoder struct {
	r   *bufio.Reader
	log *log.Logger
}

// NewDecoder wraps r with the SLP byte-stream state machine described in
// spec.md §4.1. A nil logger falls back to the standard logger.
func NewDecoder(r io.Reader, logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.Default()
	}
	return &Decoder{r: bufio.NewReader(r), log: logger}
}

// Next reads the next well-formed frame, advancing past any corrupted bytes.
func (d *Decoder) Next() (Frame, error) {
	for {
		if err := d.syncPreamble(); err != nil {
			return Frame{}, err
		}

		hdrBytes := make([]byte, 6)
		if _, err := io.ReadFull(d.r, hdrBytes); err != nil {
			return Frame{}, fmt.Errorf("slp: read header: %w", err)
		}
		want := hdrBytes[5]
		got := headerChecksum(hdrBytes[:5])
		if got != want {
			d.log.Printf("slp: header checksum mismatch (got %#x want %#x), resyncing", got, want)
			continue
		}

		bodyLen := binary.BigEndian.Uint16(hdrBytes[3:5])
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(d.r, body); err != nil {
			return Frame{}, fmt.Errorf("slp: read body: %w", err)
		}

		crcBytes := make([]byte, 2)
		if _, err := io.ReadFull(d.r, crcBytes); err != nil {
			return Frame{}, fmt.Errorf("slp: read crc: %w", err)
		}
		wantCRC := binary.BigEndian.Uint16(crcBytes)
		gotCRC := crc16(append(append([]byte{}, hdrBytes...), body...))
		if gotCRC != wantCRC {
			d.log.Printf("slp: crc mismatch (got %#x want %#x), resyncing", gotCRC, wantCRC)
			continue
		}

		return Frame{
			DestSocket: hdrBytes[0],
			SrcSocket:  hdrBytes[1],
			Type:       PacketType(hdrBytes[2]),
			Body:       body,
		}, nil
	}
}

// syncPreamble advances the stream one byte at a time until it finds the
// 3-byte preamble, per the "bad preamble -> resync by advancing one byte"
// policy in spec.md §4.1.
func (d *Decoder) syncPreamble() error {
	var window [3]byte
	n, err := io.ReadFull(d.r, window[:])
	if err != nil {
		return fmt.Errorf("slp: read preamble: %w", err)
	}
	_ = n
	for window != preamble {
		b, err := d.r.ReadByte()
		if err != nil {
			return fmt.Errorf("slp: resync: %w", err)
		}
		window[0], window[1], window[2] = window[1], window[2], b
	}
	return nil
}
