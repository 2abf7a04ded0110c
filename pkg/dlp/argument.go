// Package dlp implements the HotSync Desktop Link Protocol: a binary RPC
// encoding with three argument size classes and strict command/response
// pairing, layered over an arbitrary message-oriented byte-duplex (PADP or
// NetSync).
package dlp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// sizeClass identifies how an argument's length is encoded, per spec.md
// §3: tiny (1-byte length, <=255), short (2-byte length, <=65535), or
// long (4-byte length, <=2^32-1).
type sizeClass uint8

const (
	classTiny  sizeClass = 0x00
	classLong  sizeClass = 0x40
	classShort sizeClass = 0x80
)

// firstArgumentID is where sequential argument IDs start, per spec.md §4.2.
const firstArgumentID = 0x20

// argumentIDMask isolates the 6-bit argument ID from its header byte; the
// top two bits carry the size class.
const argumentIDMask = 0x3F

var (
	ErrProtocol = errors.New("dlp: malformed argument header")
)

// LongArgEncoding selects which of two historical wire forms is used for
// long (4-byte length) arguments. The upstream tooling this protocol was
// reverse-engineered from never settled the question (spec.md §9): pilot-
// link writes a padding byte before the 4-byte length, matching the short
// form (the tiny form has no padding byte); ColdSync omits it.
// EncodingPilotLink is the default.
var LongArgEncoding = EncodingPilotLink

type longArgEncoding uint8

const (
	EncodingPilotLink longArgEncoding = iota
	EncodingColdSync
)

// classFor picks the smallest size class whose maximum length can hold n
// bytes, per the inclusive boundaries in spec.md §8.
func classFor(n int) sizeClass {
	switch {
	case n <= 0xFF:
		return classTiny
	case n <= 0xFFFF:
		return classShort
	default:
		return classLong
	}
}

// encodeArgument writes one argument (header + length + payload) for the
// given sequential argument index.
func encodeArgument(index int, payload []byte) []byte {
	id := uint8(firstArgumentID+index) & argumentIDMask
	class := classFor(len(payload))
	switch class {
	case classTiny:
		out := make([]byte, 0, 2+len(payload))
		out = append(out, id|uint8(classTiny))
		out = append(out, uint8(len(payload)))
		return append(out, payload...)
	case classShort:
		out := make([]byte, 0, 4+len(payload))
		out = append(out, id|uint8(classShort), 0 /* padding */)
		var lenBytes [2]byte
		binary.BigEndian.PutUint16(lenBytes[:], uint16(len(payload)))
		out = append(out, lenBytes[:]...)
		return append(out, payload...)
	default: // classLong
		var lenBytes [4]byte
		binary.BigEndian.PutUint32(lenBytes[:], uint32(len(payload)))
		out := make([]byte, 0, 6+len(payload))
		out = append(out, id|uint8(classLong))
		if LongArgEncoding == EncodingPilotLink {
			out = append(out, 0 /* padding */)
		}
		out = append(out, lenBytes[:]...)
		return append(out, payload...)
	}
}

// decodeArgument reads one argument from b, returning its payload, the
// argument ID encoded in the header, and the number of bytes consumed.
func decodeArgument(b []byte) (payload []byte, id uint8, consumed int, err error) {
	if len(b) < 1 {
		return nil, 0, 0, fmt.Errorf("%w: empty argument header", ErrProtocol)
	}
	class := sizeClass(b[0] &^ argumentIDMask)
	id = b[0] & argumentIDMask

	switch class {
	case classTiny:
		if len(b) < 2 {
			return nil, 0, 0, fmt.Errorf("%w: truncated tiny header", ErrProtocol)
		}
		n := int(b[1])
		if len(b) < 2+n {
			return nil, 0, 0, fmt.Errorf("%w: truncated tiny payload", ErrProtocol)
		}
		return b[2 : 2+n], id, 2 + n, nil
	case classShort:
		if len(b) < 4 {
			return nil, 0, 0, fmt.Errorf("%w: truncated short header", ErrProtocol)
		}
		n := int(binary.BigEndian.Uint16(b[2:4]))
		if len(b) < 4+n {
			return nil, 0, 0, fmt.Errorf("%w: truncated short payload", ErrProtocol)
		}
		return b[4 : 4+n], id, 4 + n, nil
	case classLong:
		lenOff := 1
		if LongArgEncoding == EncodingPilotLink {
			lenOff = 2
		}
		hdrSize := lenOff + 4
		if len(b) < hdrSize {
			return nil, 0, 0, fmt.Errorf("%w: truncated long header", ErrProtocol)
		}
		n := int(binary.BigEndian.Uint32(b[lenOff : lenOff+4]))
		if len(b) < hdrSize+n {
			return nil, 0, 0, fmt.Errorf("%w: truncated long payload", ErrProtocol)
		}
		return b[hdrSize : hdrSize+n], id, hdrSize + n, nil
	default:
		return nil, 0, 0, fmt.Errorf("%w: unknown size class %#x", ErrProtocol, class)
	}
}
