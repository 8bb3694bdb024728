// Package memory is an in-process storage.Provider used by tests and the
// memory:// backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/julianstephens/tipje/internal/storage"
)

type document struct {
	data    storage.Fields
	version int64
}

// Store keeps versioned documents in a map guarded by a mutex.
// RunAtomic calls mutate without holding the lock, so concurrent writers
// surface as storage.ErrConflict exactly like the database adapters.
// Versions come from a store-wide counter and are never reused.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]document
	clock  int64
	loaded bool
	name   string
}

func New(name string) *Store {
	if name == "" {
		name = "default"
	}
	return &Store{name: name}
}

func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = make(map[string]document)
	}
	s.loaded = true
	return nil
}

func (s *Store) Load(ctx context.Context) error {
	return s.Init(ctx)
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Location() string {
	return "memory://" + s.name
}

func (s *Store) Read(ctx context.Context, p string) (storage.Snapshot, error) {
	collection, id, err := storage.SplitPath(p)
	if err != nil {
		return storage.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return storage.Snapshot{}, storage.ErrNotLoaded
	}
	snap := s.snapshot(collection+"/"+id, id)
	if !snap.Exists {
		return snap, storage.ErrNotFound
	}
	return snap, nil
}

// snapshot must be called with the lock held
func (s *Store) snapshot(p, id string) storage.Snapshot {
	doc, ok := s.docs[p]
	if !ok {
		return storage.Snapshot{Path: p, ID: id}
	}
	return storage.Snapshot{
		Path:    p,
		ID:      id,
		Data:    doc.data.Clone(),
		Version: doc.version,
		Exists:  true,
	}
}

func (s *Store) Write(ctx context.Context, p string, data storage.Fields, merge bool) error {
	w := storage.Write{Path: p, Data: data, Merge: merge}
	if _, _, err := storage.SplitPath(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return storage.ErrNotLoaded
	}
	s.apply(w)
	return nil
}

// apply must be called with the write lock held
func (s *Store) apply(w storage.Write) {
	p := storage.CleanPath(w.Path)
	current, ok := s.docs[p]
	if w.Delete {
		delete(s.docs, p)
		return
	}
	var base storage.Fields
	if ok {
		base = current.data
	}
	s.clock++
	s.docs[p] = document{
		data:    storage.Apply(base, w),
		version: s.clock,
	}
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Snapshot, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	prefix := storage.CleanPath(collection) + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil, storage.ErrNotLoaded
	}

	var out []storage.Snapshot
	for p := range s.docs {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, s.snapshot(p, rest))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) RunAtomic(ctx context.Context, readPaths []string, mutate storage.MutateFunc) error {
	reads := make(map[string]storage.Snapshot, len(readPaths))
	s.mu.RLock()
	if !s.loaded {
		s.mu.RUnlock()
		return storage.ErrNotLoaded
	}
	for _, p := range readPaths {
		_, id, err := storage.SplitPath(p)
		if err != nil {
			s.mu.RUnlock()
			return err
		}
		reads[p] = s.snapshot(storage.CleanPath(p), id)
	}
	s.mu.RUnlock()

	writes, err := mutate(reads)
	if err != nil {
		return err
	}
	for _, w := range writes {
		if _, _, err := storage.SplitPath(w.Path); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for p, snap := range reads {
		if s.docs[storage.CleanPath(p)].version != snap.Version {
			return storage.ErrConflict
		}
	}
	for _, w := range writes {
		s.apply(w)
	}
	return nil
}

func (s *Store) BatchDelete(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if _, _, err := storage.SplitPath(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return storage.ErrNotLoaded
	}
	for _, p := range paths {
		delete(s.docs, storage.CleanPath(p))
	}
	return nil
}

// Len reports the number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
