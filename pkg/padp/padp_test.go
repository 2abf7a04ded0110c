package padp

import (
	"bytes"
	"io"
	"log"
	"testing"
	"time"

	"github.com/palmsync/go-hotsync/pkg/slp"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// chanLink is a simple in-process duplex: frames written on one side are
// read on the other, letting tests run a sender and receiver concurrently.
type chanLink struct {
	out chan slp.Frame
	in  chan slp.Frame
}

func newLinkPair() (a, b *chanLink) {
	c1 := make(chan slp.Frame, 16)
	c2 := make(chan slp.Frame, 16)
	return &chanLink{out: c1, in: c2}, &chanLink{out: c2, in: c1}
}

func (l *chanLink) WriteFrame(f slp.Frame) error {
	l.out <- f
	return nil
}

func (l *chanLink) Next() (slp.Frame, error) {
	f, ok := <-l.in
	if !ok {
		return slp.Frame{}, io.EOF
	}
	return f, nil
}

func TestReassembly(t *testing.T) {
	senderLink, receiverLink := newLinkPair()
	sender := NewConn(senderLink, senderLink, discardLogger())
	receiver := NewConn(receiverLink, receiverLink, discardLogger())

	payload := bytes.Repeat([]byte{0x42}, FragmentSize*3+17)

	errCh := make(chan error, 1)
	go func() { errCh <- sender.Send(payload) }()

	got, err := receiver.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("reassembled %d bytes, want %d bytes matching original", len(got), len(payload))
	}
}

// droppingLink drops the Nth frame written to it (1-indexed) exactly once.
type droppingLink struct {
	*chanLink
	dropNth int
	count   int
}

func (l *droppingLink) WriteFrame(f slp.Frame) error {
	l.count++
	if l.count == l.dropNth {
		return nil // pretend it was sent, but never deliver it
	}
	return l.chanLink.WriteFrame(f)
}

func TestRetransmitOnDroppedAck(t *testing.T) {
	senderLink, receiverLink := newLinkPair()
	// Drop the first ack (the 1st frame the receiver sends back).
	droppingReceiver := &droppingLink{chanLink: receiverLink, dropNth: 1}

	sender := NewConn(senderLink, senderLink, discardLogger())
	sender.SetTimeouts(50*time.Millisecond, 3)
	receiver := NewConn(droppingReceiver, droppingReceiver, discardLogger())

	// Two fragments, so the receiver is still looping (and able to re-ack
	// the retransmitted first fragment) when the dropped ack forces a resend.
	payload := bytes.Repeat([]byte{0x7}, FragmentSize+10)

	errCh := make(chan error, 1)
	go func() { errCh <- sender.Send(payload) }()

	got, err := receiver.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("message delivered incorrectly: got %v want %v", got, payload)
	}
}

func TestSendTimesOutAfterMaxRetries(t *testing.T) {
	senderLink, _ := newLinkPair()
	sender := NewConn(senderLink, senderLink, discardLogger())
	sender.SetTimeouts(10*time.Millisecond, 2)

	err := sender.Send([]byte("no one is listening"))
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
