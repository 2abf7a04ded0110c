// Package recorder captures raw bytes crossing a session's transport, for
// offline diagnostics and for feeding a captured exchange back through the
// framing stack without hardware attached (spec.md §3's session context
// calls out a recorder that "captures raw bytes for diagnostics/replay").
package recorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Direction marks which way a recorded chunk traveled.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Record is one captured chunk: which direction it traveled, when, and its
// raw bytes.
type Record struct {
	Direction Direction
	At        time.Time
	Bytes     []byte
}

// Writer appends Records to an underlying stream as a simple
// length-prefixed log: 1 byte direction, 8 bytes Unix nanoseconds, 4 bytes
// big-endian length, then the payload.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(r Record) error {
	hdr := make([]byte, 13)
	hdr[0] = uint8(r.Direction)
	binary.BigEndian.PutUint64(hdr[1:9], uint64(r.At.UnixNano()))
	binary.BigEndian.PutUint32(hdr[9:13], uint32(len(r.Bytes)))
	if _, err := w.w.Write(hdr); err != nil {
		return fmt.Errorf("recorder: write header: %w", err)
	}
	if _, err := w.w.Write(r.Bytes); err != nil {
		return fmt.Errorf("recorder: write payload: %w", err)
	}
	return nil
}

// Reader replays Records from a log written by Writer.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (rd *Reader) Next() (Record, error) {
	hdr := make([]byte, 13)
	if _, err := io.ReadFull(rd.r, hdr); err != nil {
		return Record{}, err // io.EOF propagates to signal end of log
	}
	n := binary.BigEndian.Uint32(hdr[9:13])
	body := make([]byte, n)
	if _, err := io.ReadFull(rd.r, body); err != nil {
		return Record{}, fmt.Errorf("recorder: read payload: %w", err)
	}
	return Record{
		Direction: Direction(hdr[0]),
		At:        time.Unix(0, int64(binary.BigEndian.Uint64(hdr[1:9]))),
		Bytes:     body,
	}, nil
}

// TeeReadWriter wraps an io.ReadWriter, recording every Read and Write to
// w as it happens, without altering the bytes seen by the caller.
type TeeReadWriter struct {
	rw  io.ReadWriter
	log *Writer
	now func() time.Time
}

// NewTeeReadWriter wraps rw, recording to log using now() for timestamps
// (injectable so tests don't depend on wall-clock time).
func NewTeeReadWriter(rw io.ReadWriter, log *Writer, now func() time.Time) *TeeReadWriter {
	return &TeeReadWriter{rw: rw, log: log, now: now}
}

func (t *TeeReadWriter) Read(p []byte) (int, error) {
	n, err := t.rw.Read(p)
	if n > 0 {
		t.log.Write(Record{Direction: DirectionIn, At: t.now(), Bytes: append([]byte{}, p[:n]...)})
	}
	return n, err
}

func (t *TeeReadWriter) Write(p []byte) (int, error) {
	n, err := t.rw.Write(p)
	if n > 0 {
		t.log.Write(Record{Direction: DirectionOut, At: t.now(), Bytes: append([]byte{}, p[:n]...)})
	}
	return n, err
}
