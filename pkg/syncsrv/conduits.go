package syncsrv

import (
	"fmt"
	"io"

	"github.com/palmsync/go-hotsync/pkg/dlp"
	"github.com/palmsync/go-hotsync/pkg/storage"
)

// BackupConduit enumerates every database on the handheld and stores a
// full copy through storage.Store, the behavior a *first* or *slow* sync
// needs (spec.md §4.5's sync-type classification; fast syncs would instead
// use per-record modified flags, left to a future conduit since the
// distilled spec does not specify the record-diff format).
type BackupConduit struct{}

func (BackupConduit) Name() string { return "backup" }

func (BackupConduit) Execute(conn dlp.Duplex, ctx *SessionContext, store storage.Store) error {
	listReq := &dlp.ReadDBListRequest{CardID: 0, Flags: 0x80 /* list RAM databases */}
	resp, err := dlp.Execute(conn, listReq)
	if err != nil {
		return fmt.Errorf("backup: ReadDBList: %w", err)
	}
	list := resp.(*dlp.ReadDBListResponse)

	ctx.DBList = ctx.DBList[:0]
	for _, rec := range list.Infos {
		info := rec.(*dlp.DBInfo)
		ctx.DBList = append(ctx.DBList, *info)

		if err := backupOne(conn, store, ctx.UserName, info.Name); err != nil {
			return fmt.Errorf("backup: %s: %w", info.Name, err)
		}
	}
	return nil
}

func backupOne(conn dlp.Duplex, store storage.Store, userName, dbName string) error {
	openReq := &dlp.OpenDBRequest{CardID: 0, Mode: 0x80, Name: dbName}
	openResp, err := dlp.Execute(conn, openReq)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	handle := openResp.(*dlp.OpenDBResponse).Handle
	defer dlp.Execute(conn, &dlp.CloseDBRequest{Handle: handle})

	var records []byte
	for idx := uint16(0); ; idx++ {
		recResp, err := dlp.Execute(conn, &dlp.ReadRecordByIndexRequest{Handle: handle, Index: idx})
		if err != nil {
			if _, ok := err.(*dlp.Error); ok {
				break // past the last record
			}
			return fmt.Errorf("read record %d: %w", idx, err)
		}
		records = append(records, recResp.(*dlp.ReadRecordResponse).Data...)
	}

	return store.WriteDatabase(userName, dbName, bytesReader(records))
}

func bytesReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b []byte
	i int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

// InstallConduit uploads every database queued in the local install
// queue, then removes it from the queue on success (spec.md §6's
// "list and consume install-queue entries").
type InstallConduit struct{}

func (InstallConduit) Name() string { return "install" }

func (InstallConduit) Execute(conn dlp.Duplex, ctx *SessionContext, store storage.Store) error {
	entries, err := store.InstallQueue(ctx.UserName)
	if err != nil {
		return fmt.Errorf("install: list queue: %w", err)
	}
	for _, e := range entries {
		if err := installOne(conn, e); err != nil {
			return fmt.Errorf("install: %s: %w", e.Name, err)
		}
		if err := store.ConsumeInstallEntry(ctx.UserName, e.Name); err != nil {
			return fmt.Errorf("install: consume %s: %w", e.Name, err)
		}
	}
	return nil
}

func installOne(conn dlp.Duplex, entry storage.InstallEntry) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", entry.Name, err)
	}

	createReq := &dlp.OpenDBRequest{CardID: 0, Mode: 0x80 | 0x40, Name: entry.Name}
	openResp, err := dlp.Execute(conn, createReq)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	handle := openResp.(*dlp.OpenDBResponse).Handle
	defer dlp.Execute(conn, &dlp.CloseDBRequest{Handle: handle})

	writeReq := &dlp.WriteRecordRequest{Handle: handle, Data: data}
	if _, err := dlp.Execute(conn, writeReq); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
