package handshake

import (
	"bytes"
	"testing"

	"github.com/palmsync/go-hotsync/pkg/cmp"
	"github.com/palmsync/go-hotsync/pkg/dlp"
	"github.com/palmsync/go-hotsync/pkg/netsync"
)

// scriptedExchanger replays a fixed sequence of Receive() results and
// records Send() calls, letting the handshake tests drive both the CMP
// phase and the two DLP calls over one fake duplex.
type scriptedExchanger struct {
	sent    [][]byte
	replies [][]byte
	idx     int
}

func (s *scriptedExchanger) Send(b []byte) error {
	s.sent = append(s.sent, append([]byte{}, b...))
	return nil
}

func (s *scriptedExchanger) Receive() ([]byte, error) {
	r := s.replies[s.idx]
	s.idx++
	return r, nil
}

func sysInfoReply() []byte {
	reply := []byte{0x92, 0x01, 0x00, 0x00, 0x20, 0x0A}
	payload := make([]byte, 10)
	payload[0] = 0x01
	return append(reply, payload...)
}

func userInfoReply() []byte {
	body := []byte{}
	body = append(body, 0, 0, 0, 1) // UserID
	body = append(body, 0, 0, 0, 0) // ViewerID
	body = append(body, 0, 0, 0, 0) // LastSyncPC
	body = append(body, 0, 0, 0, 0) // SuccessSyncAt
	body = append(body, 0, 0, 0, 0) // LastSyncAt
	body = append(body, 'b', 'o', 'b', 0)
	arg := make([]byte, 0, 2+len(body))
	arg = append(arg, 0x20, uint8(len(body)))
	arg = append(arg, body...)
	reply := []byte{0x90, 0x01, 0x00, 0x00}
	return append(reply, arg...)
}

func TestRunSerialCompletesHandshakeAndReadsInfo(t *testing.T) {
	wakeup := cmp.Packet{Type: cmp.TypeWakeup, VersionMajor: 1, VersionMinor: 1, BaudRate: 9600}
	wakeupWire := cmp.Encode(wakeup)

	x := &scriptedExchanger{
		replies: [][]byte{wakeupWire, sysInfoReply(), userInfoReply()},
	}

	info, err := RunSerial(x, x)
	if err != nil {
		t.Fatalf("RunSerial: %v", err)
	}
	if info.UserInfo.UserName != "bob" {
		t.Fatalf("UserName = %q, want bob", info.UserInfo.UserName)
	}
	if len(x.sent) != 3 { // init echo + 2 DLP requests
		t.Fatalf("sent %d messages, want 3", len(x.sent))
	}
}

func TestRunNetSyncExchangesPreambleThenReadsInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write(netsync.DefaultPreamble.Encode())

	frame := func(body []byte) []byte {
		hdr := make([]byte, 6)
		hdr[1] = 0
		hdr[5] = byte(len(body))
		return append(hdr, body...)
	}
	buf.Write(frame(sysInfoReply()))
	buf.Write(frame(userInfoReply()))

	codec := netsync.NewCodec(buf)
	info, err := RunNetSync(codec, buf)
	if err != nil {
		t.Fatalf("RunNetSync: %v", err)
	}
	if info.SysInfo.ROMVersion == 0 {
		t.Fatalf("expected nonzero ROMVersion marker")
	}
}

var _ dlp.Duplex = (*scriptedExchanger)(nil)
