// Package file implements a storage.Store backed by a directory tree: one
// subdirectory per user, a file per database, an "install" subdirectory
// for queued installs, and a single dotfile holding the stable local
// computer ID.
package file

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/palmsync/go-hotsync/pkg/storage"
)

const localIDFile = ".hotsync-computer-id"

// Store roots a file-backed storage.Store at a base directory.
type Store struct {
	base string
}

// New returns a Store rooted at base, creating base if it does not exist.
func New(base string) (*Store, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("file: create base dir %s: %w", base, err)
	}
	return &Store{base: base}, nil
}

func (s *Store) userDir(userName string) string {
	return filepath.Join(s.base, userName)
}

func (s *Store) installDir(userName string) string {
	return filepath.Join(s.userDir(userName), "install")
}

func (s *Store) EnsureUserArea(userName string) error {
	if err := os.MkdirAll(s.installDir(userName), 0o755); err != nil {
		return fmt.Errorf("file: create user area %s: %w", userName, err)
	}
	return nil
}

func (s *Store) HasUserArea(userName string) (bool, error) {
	_, err := os.Stat(s.userDir(userName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListDatabases(userName string) ([]string, error) {
	entries, err := os.ReadDir(s.userDir(userName))
	if err != nil {
		return nil, fmt.Errorf("file: list databases for %q: %w", userName, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *Store) HasDatabase(userName, dbName string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.userDir(userName), dbName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ReadDatabase(userName, dbName string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.userDir(userName), dbName))
	if err != nil {
		return nil, fmt.Errorf("file: open database %q: %w", dbName, err)
	}
	return f, nil
}

func (s *Store) WriteDatabase(userName, dbName string, r io.Reader) error {
	if err := s.EnsureUserArea(userName); err != nil {
		return err
	}
	path := filepath.Join(s.userDir(userName), dbName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("file: create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("file: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("file: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("file: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

func (s *Store) InstallQueue(userName string) ([]storage.InstallEntry, error) {
	entries, err := os.ReadDir(s.installDir(userName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: list install queue for %q: %w", userName, err)
	}
	var out []storage.InstallEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.installDir(userName), e.Name())
		out = append(out, storage.InstallEntry{
			Name: e.Name(),
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return out, nil
}

func (s *Store) ConsumeInstallEntry(userName, name string) error {
	path := filepath.Join(s.installDir(userName), name)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("file: consume install entry %q: %w", name, err)
	}
	return nil
}

// LocalComputerID reads the persisted ID from base/.hotsync-computer-id,
// generating and saving one on first use.
func (s *Store) LocalComputerID() (uint32, error) {
	path := filepath.Join(s.base, localIDFile)
	data, err := os.ReadFile(path)
	if err == nil && len(data) == 4 {
		return binary.BigEndian.Uint32(data), nil
	}

	id := newLocalID()
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, id)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return 0, fmt.Errorf("file: persist local computer id: %w", err)
	}
	return id, nil
}

func newLocalID() uint32 {
	u := uuid.New()
	return binary.BigEndian.Uint32(u[:4])
}

var _ storage.Store = (*Store)(nil)
