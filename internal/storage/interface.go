package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when no document exists at the path
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by RunAtomic when a read document changed before commit
	ErrConflict = errors.New("concurrent modification detected")
	// ErrUnavailable wraps failures to reach the underlying store
	ErrUnavailable = errors.New("storage unavailable")
	// ErrNotLoaded is returned when a provider is used before Init or Load
	ErrNotLoaded = errors.New("storage not loaded")
	// ErrInvalidPath is returned for paths that do not address a document
	ErrInvalidPath = errors.New("invalid document path")
)

// Snapshot is a document as read from the store. Version is 0 for absent documents.
type Snapshot struct {
	Path    string
	ID      string
	Data    Fields
	Version int64
	Exists  bool
}

// Decode unmarshals the snapshot data into v
func (s Snapshot) Decode(v any) error {
	return s.Data.Decode(v)
}

// Write is a single mutation produced by a MutateFunc
type Write struct {
	Path   string
	Data   Fields
	Merge  bool
	Delete bool
}

// Set returns a write that replaces the document at p
func Set(p string, data Fields) Write {
	return Write{Path: p, Data: data}
}

// Merge returns a write that overlays data onto the document at p
func Merge(p string, data Fields) Write {
	return Write{Path: p, Data: data, Merge: true}
}

// Delete returns a write that removes the document at p
func Delete(p string) Write {
	return Write{Path: p, Delete: true}
}

// MutateFunc computes the writes of an atomic unit from the documents it read.
// Returning an error aborts the unit without writing anything.
type MutateFunc func(reads map[string]Snapshot) ([]Write, error)

// Provider is the persistence boundary used by the ledger. Documents are
// addressed by slash-separated paths alternating collection and document ids.
type Provider interface {
	// Lifecycle
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error

	// Documents
	Read(ctx context.Context, path string) (Snapshot, error)
	Write(ctx context.Context, path string, data Fields, merge bool) error
	// List returns the documents directly inside a collection, ordered by path.
	List(ctx context.Context, collection string) ([]Snapshot, error)
	// RunAtomic reads readPaths, calls mutate and commits its writes only if none
	// of the read documents changed in between. Otherwise it returns ErrConflict.
	RunAtomic(ctx context.Context, readPaths []string, mutate MutateFunc) error
	BatchDelete(ctx context.Context, paths []string) error

	// Utils
	Location() string
}
