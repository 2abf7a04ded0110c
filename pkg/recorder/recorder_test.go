package recorder

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	at := time.Unix(1000, 0)

	if err := w.Write(Record{Direction: DirectionOut, At: at, Bytes: []byte("hello")}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(Record{Direction: DirectionIn, At: at.Add(time.Second), Bytes: []byte("world")}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := NewReader(buf)
	rec1, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec1.Direction != DirectionOut || string(rec1.Bytes) != "hello" {
		t.Fatalf("rec1 = %+v", rec1)
	}

	rec2, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec2.Direction != DirectionIn || string(rec2.Bytes) != "world" {
		t.Fatalf("rec2 = %+v", rec2)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of log, got %v", err)
	}
}

type fakeConn struct {
	toRead  *bytes.Buffer
	written bytes.Buffer
}

func (c *fakeConn) Read(p []byte) (int, error)  { return c.toRead.Read(p) }
func (c *fakeConn) Write(p []byte) (int, error) { return c.written.Write(p) }

func TestTeeReadWriterCapturesBothDirections(t *testing.T) {
	conn := &fakeConn{toRead: bytes.NewBufferString("device-says-hi")}
	log := &bytes.Buffer{}
	tee := NewTeeReadWriter(conn, NewWriter(log), func() time.Time { return time.Unix(1, 0) })

	buf := make([]byte, 64)
	n, err := tee.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := tee.Write([]byte("host-says-hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := NewReader(log)
	rec1, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec1.Direction != DirectionIn || string(rec1.Bytes) != string(buf[:n]) {
		t.Fatalf("rec1 mismatch: %+v", rec1)
	}
	rec2, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec2.Direction != DirectionOut || string(rec2.Bytes) != "host-says-hi" {
		t.Fatalf("rec2 mismatch: %+v", rec2)
	}
}
