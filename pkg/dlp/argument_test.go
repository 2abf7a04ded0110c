package dlp

import (
	"bytes"
	"testing"
)

func TestClassForBoundaries(t *testing.T) {
	cases := []struct {
		n    int
		want sizeClass
	}{
		{0, classTiny},
		{255, classTiny},
		{256, classShort},
		{65535, classShort},
		{65536, classLong},
	}
	for _, c := range cases {
		if got := classFor(c.n); got != c.want {
			t.Errorf("classFor(%d) = %#x, want %#x", c.n, got, c.want)
		}
	}
}

func TestColdSyncLongArgOmitsPadding(t *testing.T) {
	prev := LongArgEncoding
	defer func() { LongArgEncoding = prev }()

	payload := bytes.Repeat([]byte{0x22}, 70000)
	LongArgEncoding = EncodingPilotLink
	pilotWire := encodeArgument(0, payload)

	LongArgEncoding = EncodingColdSync
	coldWire := encodeArgument(0, payload)

	if len(coldWire) != len(pilotWire)-1 {
		t.Fatalf("coldsync wire len %d, want %d", len(coldWire), len(pilotWire)-1)
	}

	got, id, consumed, err := decodeArgument(coldWire)
	if err != nil {
		t.Fatalf("decodeArgument: %v", err)
	}
	if consumed != len(coldWire) || id != firstArgumentID {
		t.Fatalf("consumed=%d id=%#x", consumed, id)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestArgumentRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 255, 256, 65535, 70000} {
		payload := bytes.Repeat([]byte{0x11}, n)
		wire := encodeArgument(2, payload)
		got, id, consumed, err := decodeArgument(wire)
		if err != nil {
			t.Fatalf("n=%d: decodeArgument: %v", n, err)
		}
		if consumed != len(wire) {
			t.Fatalf("n=%d: consumed %d, want %d", n, consumed, len(wire))
		}
		if id != firstArgumentID+2 {
			t.Fatalf("n=%d: id = %#x, want %#x", n, id, firstArgumentID+2)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("n=%d: payload mismatch (%d vs %d bytes)", n, len(got), len(payload))
		}
	}
}
