package syncsrv

import (
	"errors"
	"testing"
	"time"

	"github.com/palmsync/go-hotsync/pkg/dlp"
	"github.com/palmsync/go-hotsync/pkg/storage"
	"github.com/palmsync/go-hotsync/pkg/storage/memory"
)

func TestClassifyFirstSync(t *testing.T) {
	got := Classify(dlp.ReadUserInfoResponse{}, 42, false, 0)
	if got != SyncFirst {
		t.Fatalf("got %v, want SyncFirst", got)
	}
}

func TestClassifyFastSync(t *testing.T) {
	info := dlp.ReadUserInfoResponse{LastSyncPC: 42, LastSyncAt: 100}
	got := Classify(info, 42, true, 100)
	if got != SyncFast {
		t.Fatalf("got %v, want SyncFast", got)
	}
}

func TestClassifySlowSync(t *testing.T) {
	info := dlp.ReadUserInfoResponse{LastSyncPC: 99, LastSyncAt: 50}
	got := Classify(info, 42, true, 100)
	if got != SyncSlow {
		t.Fatalf("got %v, want SyncSlow", got)
	}
}

// scriptedDevice replays a fixed sequence of replies and records every
// Send(), so tests can assert on the exact RPC sequence RunOne issues.
type scriptedDevice struct {
	sent    [][]byte
	replies [][]byte
	idx     int
	closed  bool
}

func (d *scriptedDevice) Send(p []byte) error {
	d.sent = append(d.sent, append([]byte{}, p...))
	return nil
}

func (d *scriptedDevice) Receive() ([]byte, error) {
	r := d.replies[d.idx]
	d.idx++
	return r, nil
}

func (d *scriptedDevice) Close() error {
	d.closed = true
	return nil
}

func sysInfoReply() []byte {
	reply := []byte{0x92, 0x01, 0x00, 0x00, 0x20, 0x0A}
	payload := make([]byte, 10)
	payload[0] = 1
	return append(reply, payload...)
}

func userInfoReply() []byte {
	body := make([]byte, 20)
	body = append(body, 'b', 'o', 'b', 0)
	arg := []byte{0x20, uint8(len(body))}
	arg = append(arg, body...)
	reply := []byte{0x90, 0x01, 0x00, 0x00}
	return append(reply, arg...)
}

func endOfSyncReply() []byte {
	return []byte{0xAC, 0x00, 0x00, 0x00}
}

var errFailing = errors.New("intentional test failure")

// recordingConduit records whether it ran and can be made to fail, to
// exercise the "conduit failure doesn't abort the pipeline" rule.
type recordingConduit struct {
	name string
	fail bool
	ran  bool
}

func (c *recordingConduit) Name() string { return c.name }
func (c *recordingConduit) Execute(conn dlp.Duplex, ctx *SessionContext, store storage.Store) error {
	c.ran = true
	if c.fail {
		return errFailing
	}
	return nil
}

func TestRunOneRunsAllConduitsAndEndsSync(t *testing.T) {
	dev := &scriptedDevice{replies: [][]byte{sysInfoReply(), userInfoReply(), endOfSyncReply()}}
	store := memory.New()

	c1 := &recordingConduit{name: "installer"}
	c2 := &recordingConduit{name: "failing", fail: true}
	c3 := &recordingConduit{name: "final"}

	srv := NewServer([]Conduit{c1, c2, c3}, store, nil, nil)
	state, err := srv.RunOne(dev, "bob")
	if err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if state != StateClosed {
		t.Fatalf("state = %v, want CLOSED", state)
	}
	if !c1.ran || !c2.ran || !c3.ran {
		t.Fatalf("expected all conduits to run despite c2 failing: %+v %+v %+v", c1, c2, c3)
	}
	if !dev.closed {
		t.Fatalf("expected device to be closed")
	}
	if len(dev.sent) != 3 {
		t.Fatalf("sent %d messages, want 3 (sysinfo, userinfo, endofsync)", len(dev.sent))
	}
}

func TestNopMetricsDoesNotPanic(t *testing.T) {
	var m NopMetrics
	m.ObserveSession(SyncFast, StateClosed, time.Millisecond)
	m.ObserveConduitError("x")
}
