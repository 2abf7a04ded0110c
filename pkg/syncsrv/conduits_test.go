package syncsrv

import (
	"bytes"
	"io"
	"testing"

	"github.com/palmsync/go-hotsync/pkg/storage"
	"github.com/palmsync/go-hotsync/pkg/storage/memory"
)

// queueDevice answers DLP calls from a fixed queue of reply bytes,
// independent of what was sent, for conduits tests that issue several
// different command types in sequence.
type queueDevice struct {
	replies [][]byte
	idx     int
}

func (d *queueDevice) Send([]byte) error { return nil }
func (d *queueDevice) Receive() ([]byte, error) {
	r := d.replies[d.idx]
	d.idx++
	return r, nil
}

func openDBReply(handle uint8) []byte {
	return []byte{dlpCmdResp(0x17), 0x01, 0x00, 0x00, 0x20, 0x01, handle}
}

func closeDBReply() []byte {
	return []byte{dlpCmdResp(0x19), 0x00, 0x00, 0x00}
}

func dbListReply(names ...string) []byte {
	reply := []byte{dlpCmdResp(0x16), 0x02, 0x00, 0x00}
	var entries []byte
	for _, n := range names {
		rec := make([]byte, 0, 8+len(n)+1)
		rec = append(rec, 0, 0) // attributes
		rec = append(rec, 0, 1) // version
		rec = append(rec, 0, 0, 0, 0) // type
		rec = append(rec, 0, 0, 0, 0) // creator
		rec = append(rec, []byte(n)...)
		rec = append(rec, 0)
		entries = append(entries, rec...)
	}
	arg1 := []byte{0x20, 0x02, 0x00, 0x00} // last index = 0, tiny len 2
	arg2 := make([]byte, 0, 2+len(entries))
	arg2 = append(arg2, 0x21, uint8(len(entries)))
	arg2 = append(arg2, entries...)
	reply = append(reply, arg1...)
	reply = append(reply, arg2...)
	return reply
}

func recordReply(data []byte, recID uint32) []byte {
	reply := []byte{dlpCmdResp(0x24), 0x01, 0x00, 0x00}
	body := make([]byte, 0, 6+len(data))
	body = append(body, byte(recID>>24), byte(recID>>16), byte(recID>>8), byte(recID))
	body = append(body, 0, 0) // attributes, category
	body = append(body, data...)
	arg := append([]byte{0x20, uint8(len(body))}, body...)
	return append(reply, arg...)
}

func notFoundReply() []byte {
	return []byte{dlpCmdResp(0x24), 0x00, 0x00, 0x03}
}

func dlpCmdResp(cmd uint8) uint8 { return cmd | 0x80 }

func TestBackupConduitReadsAllRecordsOfEachDatabase(t *testing.T) {
	dev := &queueDevice{replies: [][]byte{
		dbListReply("MemoDB"),
		openDBReply(1),
		recordReply([]byte("rec1"), 1),
		notFoundReply(),
		closeDBReply(),
	}}
	store := memory.New()
	ctx := &SessionContext{UserName: "bob"}

	c := BackupConduit{}
	if err := c.Execute(dev, ctx, store); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	has, _ := store.HasDatabase("bob", "MemoDB")
	if !has {
		t.Fatalf("expected MemoDB to be backed up")
	}
	if len(ctx.DBList) != 1 || ctx.DBList[0].Name != "MemoDB" {
		t.Fatalf("DBList = %+v", ctx.DBList)
	}
}

func TestInstallConduitConsumesQueueOnSuccess(t *testing.T) {
	dev := &queueDevice{replies: [][]byte{
		openDBReply(2),
		[]byte{dlpCmdResp(0x21), 0x01, 0x00, 0x00, 0x20, 0x04, 0, 0, 0, 0x2A},
		closeDBReply(),
	}}
	store := memory.New()
	data := []byte("prc-bytes")
	store.QueueInstall("bob", storage.InstallEntry{
		Name: "NewApp.prc",
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	})

	c := InstallConduit{}
	if err := c.Execute(dev, &SessionContext{UserName: "bob"}, store); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entries, _ := store.InstallQueue("bob")
	if len(entries) != 0 {
		t.Fatalf("expected install queue to be empty after success, got %+v", entries)
	}
}
