package slp

import (
	"bytes"
	"io"
	"log"
	"testing"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB, 0xCD, 0x01}, 2000) // well under 65535
	f := Frame{DestSocket: 3, SrcSocket: 3, Type: TypePADP, Body: body}

	wire, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec := NewDecoder(bytes.NewReader(wire), nil)
	got, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.DestSocket != f.DestSocket || got.SrcSocket != f.SrcSocket || got.Type != f.Type {
		t.Fatalf("field mismatch: got %+v want socket/type from %+v", got, f)
	}
	if !bytes.Equal(got.Body, f.Body) {
		t.Fatalf("body mismatch: got %d bytes want %d bytes", len(got.Body), len(f.Body))
	}
}

func TestCorruptedChecksumRejected(t *testing.T) {
	f := Frame{DestSocket: 3, SrcSocket: 3, Type: TypePADP, Body: []byte("hello")}
	wire, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Corrupt the header checksum byte (index 3+5 = preamble(3)+header fields(5)).
	wire[8] ^= 0xFF

	dec := NewDecoder(bytes.NewReader(wire), discardLogger())
	if _, err := dec.Next(); err == nil {
		t.Fatalf("expected decode to reject corrupted frame, got nil error")
	}
}

func TestTooLargeBody(t *testing.T) {
	f := Frame{DestSocket: 3, SrcSocket: 3, Type: TypeRaw, Body: make([]byte, 0x10000)}
	if _, err := Encode(f); err != ErrBodyTooLarge {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}
