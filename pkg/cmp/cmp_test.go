package cmp

import "testing"

type fakeExchanger struct {
	toSend    [][]byte
	sent      [][]byte
	recvIndex int
}

func (f *fakeExchanger) Send(b []byte) error {
	f.sent = append(f.sent, append([]byte{}, b...))
	return nil
}

func (f *fakeExchanger) Receive() ([]byte, error) {
	b := f.toSend[f.recvIndex]
	f.recvIndex++
	return b, nil
}

func TestHandshakeEchoesProposedParameters(t *testing.T) {
	wakeup := Packet{Type: TypeWakeup, VersionMajor: 1, VersionMinor: 4, BaudRate: 115200}
	x := &fakeExchanger{toSend: [][]byte{Encode(wakeup)}}

	got, err := Handshake(x)
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if got != wakeup {
		t.Fatalf("got %+v, want %+v", got, wakeup)
	}
	if len(x.sent) != 1 {
		t.Fatalf("expected exactly one init packet sent, got %d", len(x.sent))
	}
	init, err := Decode(x.sent[0])
	if err != nil {
		t.Fatalf("Decode sent init: %v", err)
	}
	if init.Type != TypeInit || init.BaudRate != wakeup.BaudRate {
		t.Fatalf("init did not echo wakeup parameters: %+v", init)
	}
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error decoding short packet")
	}
}
