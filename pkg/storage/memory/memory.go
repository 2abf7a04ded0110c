// Package memory implements an in-memory storage.Store, used by tests and
// by the recorder replay tool where there is no real desktop filesystem to
// persist into.
package memory

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/palmsync/go-hotsync/pkg/storage"
)

type userArea struct {
	databases map[string][]byte
	installQ  []storage.InstallEntry
}

// Store is a storage.Store backed entirely by process memory.
type Store struct {
	mu       sync.Mutex
	users    map[string]*userArea
	localID  uint32
}

// New returns an empty Store with a freshly generated local computer ID.
func New() *Store {
	id := crc32.ChecksumIEEE([]byte(uuid.NewString()))
	return &Store{users: make(map[string]*userArea), localID: id}
}

func (s *Store) EnsureUserArea(userName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userName]; !ok {
		s.users[userName] = &userArea{databases: make(map[string][]byte)}
	}
	return nil
}

func (s *Store) HasUserArea(userName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userName]
	return ok, nil
}

func (s *Store) ListDatabases(userName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return nil, fmt.Errorf("memory: no user area for %q", userName)
	}
	names := make([]string, 0, len(u.databases))
	for name := range u.databases {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) HasDatabase(userName, dbName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return false, nil
	}
	_, ok = u.databases[dbName]
	return ok, nil
}

func (s *Store) ReadDatabase(userName, dbName string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return nil, fmt.Errorf("memory: no user area for %q", userName)
	}
	data, ok := u.databases[dbName]
	if !ok {
		return nil, fmt.Errorf("memory: no database %q for user %q", dbName, userName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) WriteDatabase(userName, dbName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("memory: read database %q: %w", dbName, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		u = &userArea{databases: make(map[string][]byte)}
		s.users[userName] = u
	}
	u.databases[dbName] = data
	return nil
}

func (s *Store) InstallQueue(userName string) ([]storage.InstallEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return nil, nil
	}
	return append([]storage.InstallEntry{}, u.installQ...), nil
}

// QueueInstall adds an entry to userName's install queue; it exists on the
// concrete type (not storage.Store) since queueing an install is a
// test/tooling concern, not something a conduit does.
func (s *Store) QueueInstall(userName string, entry storage.InstallEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		u = &userArea{databases: make(map[string][]byte)}
		s.users[userName] = u
	}
	u.installQ = append(u.installQ, entry)
}

func (s *Store) ConsumeInstallEntry(userName, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userName]
	if !ok {
		return fmt.Errorf("memory: no user area for %q", userName)
	}
	for i, e := range u.installQ {
		if e.Name == name {
			u.installQ = append(u.installQ[:i], u.installQ[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory: no install entry %q for user %q", name, userName)
}

func (s *Store) LocalComputerID() (uint32, error) {
	return s.localID, nil
}

var _ storage.Store = (*Store)(nil)
