package memory

import (
	"bytes"
	"io"
	"testing"

	"github.com/palmsync/go-hotsync/pkg/storage"
)

func TestEnsureAndHasUserArea(t *testing.T) {
	s := New()
	if has, _ := s.HasUserArea("bob"); has {
		t.Fatalf("expected no user area yet")
	}
	if err := s.EnsureUserArea("bob"); err != nil {
		t.Fatalf("EnsureUserArea: %v", err)
	}
	if has, _ := s.HasUserArea("bob"); !has {
		t.Fatalf("expected user area to exist")
	}
}

func TestWriteReadDatabase(t *testing.T) {
	s := New()
	if err := s.WriteDatabase("bob", "MemoDB", bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("WriteDatabase: %v", err)
	}
	rc, err := s.ReadDatabase("bob", "MemoDB")
	if err != nil {
		t.Fatalf("ReadDatabase: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("got %q, want data", got)
	}
}

func TestInstallQueueLifecycle(t *testing.T) {
	s := New()
	s.QueueInstall("bob", storage.InstallEntry{Name: "NewApp.prc"})
	entries, err := s.InstallQueue("bob")
	if err != nil {
		t.Fatalf("InstallQueue: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "NewApp.prc" {
		t.Fatalf("entries = %+v", entries)
	}
	if err := s.ConsumeInstallEntry("bob", "NewApp.prc"); err != nil {
		t.Fatalf("ConsumeInstallEntry: %v", err)
	}
	entries, _ = s.InstallQueue("bob")
	if len(entries) != 0 {
		t.Fatalf("expected queue to be empty after consume, got %+v", entries)
	}
}

func TestLocalComputerIDStableWithinInstance(t *testing.T) {
	s := New()
	id1, _ := s.LocalComputerID()
	id2, _ := s.LocalComputerID()
	if id1 != id2 {
		t.Fatalf("LocalComputerID not stable: %d vs %d", id1, id2)
	}
}
