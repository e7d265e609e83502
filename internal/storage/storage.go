// Package storage defines the contract for JSON document storage backends.
//
// The concrete engine lives in the postgres sub-package; the memory
// sub-package provides an in-process implementation with identical semantics
// for tests and local development. This package holds the interface, the
// sentinel errors, the change-record type, and the per-subscription event
// stream shared by both backends.
package storage

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound is returned when a logical database does not exist for a read
// or mutate operation.
var ErrNotFound = errors.New("database not found")

// ErrAlreadyExists is returned by CreateDatabase when the name is taken.
var ErrAlreadyExists = errors.New("database already exists")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("storage closed")

// ErrInvalidPath is returned for malformed paths: empty segments, control
// characters, or a missing path where one is required.
var ErrInvalidPath = errors.New("invalid path")

// ErrInvalidName is returned when a logical database name does not match
// [a-z0-9_-]+. Names become SQL identifiers and notification channels, so
// validation is strict.
var ErrInvalidName = errors.New("invalid database name")

var namePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// reservedNames are table names the engine uses for itself; a logical
// database may not shadow them.
var reservedNames = map[string]bool{
	"storage_meta":     true,
	"goose_db_version": true,
}

// ValidateName checks that name is usable as a logical database name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || reservedNames[name] {
		return ErrInvalidName
	}
	return nil
}

// EventKind is the kind of mutation a change record describes.
type EventKind string

const (
	// EventPut covers put, post, and delete: all three overwrite a subtree.
	EventPut EventKind = "put"
	// EventPatch covers deep-merge mutations.
	EventPatch EventKind = "patch"
)

// ChangeRecord is emitted for every committed mutation. Path is the full
// slash-joined path of the mutation; Data is the value that was written
// (nil for delete).
type ChangeRecord struct {
	Event EventKind `json:"event"`
	Path  string    `json:"path"`
	Data  any       `json:"data"`
}

// Notifier is a live subscription to one logical database's change records,
// filtered by path prefix. Events is closed when the subscription ends, from
// either side. Cleanup is idempotent and safe to call concurrently.
type Notifier interface {
	Events() <-chan ChangeRecord
	Cleanup() error
}

// Storage is the engine contract. Mutations are atomic: the row update and
// the change-record publish commit together, and a listener subscribed
// before the commit observes the record.
type Storage interface {
	// CreateDatabase creates the catalog entry and the per-database table.
	CreateDatabase(ctx context.Context, name string) (*Database, error)
	// DeleteDatabase drops the table and the catalog entry.
	DeleteDatabase(ctx context.Context, name string) error
	// GetDatabase returns a handle, or (nil, nil) when the name is unknown.
	// Handles are cached by name.
	GetDatabase(ctx context.Context, name string) (*Database, error)
	// ListDatabases returns the names in the catalog.
	ListDatabases(ctx context.Context) ([]string, error)

	// Get reads the value at path; an empty path returns the merged union of
	// all root-key rows. A missing row or sub-path yields (nil, nil).
	Get(ctx context.Context, name, path string) (any, error)
	// Put deep-sets value at path and returns it.
	Put(ctx context.Context, name, path string, value any) (any, error)
	// Patch deep-merges value into the subtree at path and returns it.
	Patch(ctx context.Context, name, path string, value any) (any, error)
	// Post appends value under a fresh push ID and returns {pushID: value}.
	Post(ctx context.Context, name, path string, value any) (map[string]any, error)
	// Delete writes JSON null at path. The key stays present so the path's
	// existence and its change record survive; only DeleteDatabase removes
	// rows.
	Delete(ctx context.Context, name, path string) (bool, error)

	// Notifier opens a dedicated subscription to the database's change
	// records whose paths start with prefix. An empty prefix matches all.
	Notifier(ctx context.Context, name, prefix string) (Notifier, error)

	// Close cancels all subscriptions and releases connections. Every
	// operation afterwards returns ErrClosed.
	Close() error
}

// Database is a name-bound convenience handle over a Storage.
type Database struct {
	name  string
	store Storage
}

// NewDatabase binds name to store. Backends construct handles with
// themselves so wrapped stores (e.g. telemetry) can rebind.
func NewDatabase(name string, store Storage) *Database {
	return &Database{name: name, store: store}
}

// Name returns the logical database name.
func (d *Database) Name() string { return d.name }

func (d *Database) Get(ctx context.Context, path string) (any, error) {
	return d.store.Get(ctx, d.name, path)
}

func (d *Database) Put(ctx context.Context, path string, value any) (any, error) {
	return d.store.Put(ctx, d.name, path, value)
}

func (d *Database) Patch(ctx context.Context, path string, value any) (any, error) {
	return d.store.Patch(ctx, d.name, path, value)
}

func (d *Database) Post(ctx context.Context, path string, value any) (map[string]any, error) {
	return d.store.Post(ctx, d.name, path, value)
}

func (d *Database) Delete(ctx context.Context, path string) (bool, error) {
	return d.store.Delete(ctx, d.name, path)
}

func (d *Database) Notifier(ctx context.Context, prefix string) (Notifier, error) {
	return d.store.Notifier(ctx, d.name, prefix)
}
