// Package config holds the in-process configuration the core subsystems
// need to be constructed. Loading this from a TOML-like file on disk is
// explicitly out of scope (spec.md §1); this struct is what such a loader
// would eventually populate and hand to the supervisor.
package config

import (
	"time"

	"github.com/svmk2808/syncspirit/internal/model"
)

// Config is threaded explicitly through actor constructors; unlike the
// teacher repo's client/state.go it is never a package-level global.
type Config struct {
	// DeviceID is this device's own identity, the textual encoding of
	// sha256(DER(our certificate)).
	DeviceID string

	// ListenAddr is the local TCP address peer connections are accepted on.
	ListenAddr string

	// Folders lists the folders this device owns at startup, keyed by
	// folder id.
	Folders []FolderConfig

	// MappingCacheSize bounds the File Actor's LRU of open memory-mapped
	// files (spec.md §4.6).
	MappingCacheSize int

	// HasherThreads sizes the hasher pool (spec.md §4.7) and, via
	// hasherThreads*2, the controller's in-flight block request window
	// (spec.md §4.5).
	HasherThreads int

	// ConnectTimeout, RequestTimeout, HandshakeTimeout are the three named
	// timeout classes from spec.md §5.
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration

	// UncommittedThreshold is the number of non-critical diffs the
	// persistence actor accumulates before force-committing its open
	// transaction (spec.md §4.3).
	UncommittedThreshold int

	// DBPath is the badger directory used by the persistence actor.
	DBPath string
}

// FolderConfig describes one locally-configured folder. Type and PullOrder
// reuse model's enums directly rather than re-declaring them, since a
// FolderConfig exists only to be turned into a model.Folder at startup.
type FolderConfig struct {
	ID                string
	Label             string
	Path              string
	Type              model.FolderType
	RescanInterval    time.Duration
	PullOrder         model.PullOrder
	Watched           bool
	IgnorePermissions bool
}

// ToFolder builds the model.Folder a diff.CreateFolder will install.
func (fc FolderConfig) ToFolder() *model.Folder {
	return &model.Folder{
		ID:                fc.ID,
		Label:             fc.Label,
		Path:              fc.Path,
		Type:              fc.Type,
		RescanInterval:    fc.RescanInterval,
		PullOrder:         fc.PullOrder,
		Watched:           fc.Watched,
		IgnorePermissions: fc.IgnorePermissions,
	}
}

// Default returns sane defaults for a single-folder daemon; callers
// override fields as needed.
func Default() Config {
	return Config{
		MappingCacheSize:     64,
		HasherThreads:        4,
		ConnectTimeout:       10 * time.Second,
		RequestTimeout:       60 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		UncommittedThreshold: 50,
		DBPath:               "syncspirit.db",
	}
}
