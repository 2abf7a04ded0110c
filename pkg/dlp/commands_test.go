package dlp

import (
	"bytes"
	"testing"
)

func TestOpenDBRequestFields(t *testing.T) {
	req := &OpenDBRequest{CardID: 0, Mode: 0x80, Name: "MemoDB"}
	wire, err := encodeRequest(req)
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	if wire[0] != cmdOpenDB {
		t.Fatalf("command id = %#x, want %#x", wire[0], cmdOpenDB)
	}
	if wire[1] != 3 {
		t.Fatalf("argument count = %d, want 3", wire[1])
	}
}

func TestReadDBListResponseDecodesMultipleEntries(t *testing.T) {
	var infos []Record
	first := &DBInfo{Attributes: 0, Version: 1, Type: 0x44415441, Creator: 0x6D656D6F, Name: "MemoDB"}
	second := &DBInfo{Attributes: 0, Version: 1, Type: 0x44415441, Creator: 0x61646472, Name: "AddressDB"}
	infos = append(infos, first, second)

	payload := RecordArrayField{Elems: &infos}.Encode()

	var decoded []Record
	field := RecordArrayField{Elems: &decoded, New: func() Record { return &DBInfo{} }}
	if err := field.Decode(payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d entries, want 2", len(decoded))
	}
	got0 := decoded[0].(*DBInfo)
	if got0.Name != "MemoDB" || got0.Creator != 0x6D656D6F {
		t.Fatalf("entry 0 = %+v", got0)
	}
	got1 := decoded[1].(*DBInfo)
	if got1.Name != "AddressDB" {
		t.Fatalf("entry 1 = %+v", got1)
	}
}

func TestDeleteRecordRequestFields(t *testing.T) {
	req := &DeleteRecordRequest{Handle: 4, Flags: 0, RecordID: 0x1234}
	wire, err := encodeRequest(req)
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	if wire[0] != cmdDeleteRecord {
		t.Fatalf("command id = %#x", wire[0])
	}
}

func TestWriteRecordExecuteRoundTrip(t *testing.T) {
	req := &WriteRecordRequest{Handle: 1, RecordID: 0, Category: 0, Data: []byte("payload")}
	reply := []byte{cmdWriteRecord | 0x80, 0x01, 0x00, 0x00}
	reply = append(reply, encodeArgument(0, []byte{0x00, 0x00, 0x00, 0x2A})...)
	d := &fakeDuplex{reply: reply}

	resp, err := Execute(d, req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := resp.(*WriteRecordResponse)
	if got.RecordID != 0x2A {
		t.Fatalf("RecordID = %d, want 42", got.RecordID)
	}
	if !bytes.Contains(d.sent, req.Data) {
		t.Fatalf("sent request did not carry record data")
	}
}
