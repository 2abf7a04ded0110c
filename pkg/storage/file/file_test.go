package file

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadDatabaseRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.WriteDatabase("bob", "MemoDB", bytes.NewReader([]byte("payload"))); err != nil {
		t.Fatalf("WriteDatabase: %v", err)
	}
	has, err := s.HasDatabase("bob", "MemoDB")
	if err != nil || !has {
		t.Fatalf("HasDatabase = %v, %v", has, err)
	}
	rc, err := s.ReadDatabase("bob", "MemoDB")
	if err != nil {
		t.Fatalf("ReadDatabase: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "payload" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalComputerIDPersists(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id1, err := s1.LocalComputerID()
	if err != nil {
		t.Fatalf("LocalComputerID: %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	id2, err := s2.LocalComputerID()
	if err != nil {
		t.Fatalf("LocalComputerID (reopen): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("local computer id not stable across reopen: %d vs %d", id1, id2)
	}
}

func TestInstallQueueLifecycle(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.EnsureUserArea("bob"); err != nil {
		t.Fatalf("EnsureUserArea: %v", err)
	}
	entries, err := s.InstallQueue("bob")
	if err != nil {
		t.Fatalf("InstallQueue: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty queue, got %+v", entries)
	}
}
