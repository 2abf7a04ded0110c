// Package storage defines the contract the sync orchestrator and conduits
// use to persist synced data, independent of whether the backing store is
// a directory tree (pkg/storage/file) or an in-memory map (pkg/storage/memory,
// used by tests and the replay tool).
package storage

import "io"

// InstallEntry is one pending "install on next sync" item, the mechanism
// Palm desktop software uses to queue a new database for upload before the
// next HotSync.
type InstallEntry struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Store is the storage contract named in spec.md §6: per-user database
// storage plus a stable local computer ID used to detect first/fast/slow
// syncs.
type Store interface {
	// EnsureUserArea creates the on-disk (or in-memory) area for a user if
	// it does not already exist.
	EnsureUserArea(userName string) error
	// HasUserArea reports whether a user area already exists, the signal
	// a *first* sync is distinguished from a *fast*/*slow* one.
	HasUserArea(userName string) (bool, error)

	// ListDatabases returns the names of every database stored for a user.
	ListDatabases(userName string) ([]string, error)
	// HasDatabase reports whether a named database exists for a user.
	HasDatabase(userName, dbName string) (bool, error)
	// ReadDatabase opens a stored database for reading.
	ReadDatabase(userName, dbName string) (io.ReadCloser, error)
	// WriteDatabase stores (or replaces) a database from r.
	WriteDatabase(userName, dbName string, r io.Reader) error

	// InstallQueue lists databases queued for install on the next sync.
	InstallQueue(userName string) ([]InstallEntry, error)
	// ConsumeInstallEntry removes an entry from the install queue once a
	// conduit has successfully installed it.
	ConsumeInstallEntry(userName, name string) error

	// LocalComputerID returns a stable identifier for this desktop
	// installation, persisted across runs, which syncsrv.Classify compares
	// with the handheld's "last-sync PC ID". The sync server does not send
	// it back to the handheld (no WriteUserInfo call is made).
	LocalComputerID() (uint32, error)
}
