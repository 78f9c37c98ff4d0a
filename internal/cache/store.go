// Package cache persists scan snapshots keyed by content hash and gates
// repeated pipeline runs behind an LRU+TTL store.
package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"depgate/internal/report"
)

// ErrMiss is returned when a key has no live snapshot.
var ErrMiss = errors.New("cache miss")

// Snapshot is the cache unit: everything computed for one content-hash key.
// Safe to delete at any time; loss only forces a full rescan.
type Snapshot struct {
	Key              string         `json:"key"`
	GraphHash        string         `json:"graph_hash"`
	CatalogueVersion string         `json:"catalogue_version"`
	PolicyVersion    string         `json:"policy_version"`
	ScorerVersion    string         `json:"scorer_version"`
	ScanRef          string         `json:"scan_ref,omitempty"` // HEAD commit at compute time, the next scan's --since
	CreatedAt        time.Time      `json:"created_at"`
	Report           *report.Report `json:"report"`
}

// Entry is store metadata for one key, used for listing and eviction.
type Entry struct {
	Key        string
	CreatedAt  time.Time
	LastAccess time.Time
}

// Store is the persistence backend for snapshots.
type Store interface {
	Close() error
	Get(key string) (*Snapshot, error)
	Put(snap *Snapshot) error
	Delete(key string) error
	Entries() ([]Entry, error)
	Touch(key string, at time.Time) error
	Count() (int, error)
	Purge() error
}

// StoreConfig selects and locates the backend.
type StoreConfig struct {
	Type string // "sqlite" or empty
	Path string // database file path
}

// NewStore builds the configured backend. Snapshot state is local-disk
// only, so network-backed stores are rejected outright.
func NewStore(config StoreConfig) (Store, error) {
	switch strings.ToLower(config.Type) {
	case "sqlite", "sqlite3", "":
		if config.Path == "" {
			config.Path = ".depgate.db"
		}
		return NewSQLiteStore(config.Path)
	default:
		return nil, fmt.Errorf("unsupported snapshot store type %q: snapshot state is local-disk only", config.Type)
	}
}
