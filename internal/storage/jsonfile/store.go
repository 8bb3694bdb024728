// Package jsonfile keeps all documents in a single JSON file guarded by a lockfile.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/storage"
)

const formatVersion = 1

type document struct {
	Data    storage.Fields `json:"data"`
	Version int64          `json:"version"`
}

type fileContents struct {
	Version   int                 `json:"version"`
	Documents map[string]document `json:"documents"`
}

// Store is a storage.Provider over one JSON file. Every operation reloads the
// file under an exclusive lock, so several processes may share it. RunAtomic
// holds the lock for the whole unit and never reports a conflict.
type Store struct {
	path   string
	mu     sync.Mutex
	lock   lockfile
	loaded bool
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: lockfile{path: path + constants.LockfileSuffix},
	}
}

func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.acquire(); err != nil {
		return err
	}
	defer s.lock.release()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := s.save(&fileContents{Version: formatVersion, Documents: map[string]document{}}); err != nil {
			return err
		}
	} else if _, err := s.read(); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("%w: run 'tipje init' first", storage.ErrNotLoaded)
	}
	if _, err := s.read(); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Location() string {
	return s.path
}

func (s *Store) read() (*fileContents, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read storage: %v", storage.ErrUnavailable, err)
	}
	contents := &fileContents{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(contents); err != nil {
		return nil, fmt.Errorf("failed to parse storage: %w", err)
	}
	if contents.Version > formatVersion {
		return nil, fmt.Errorf("storage format version (%d) is newer than supported version (%d) - please upgrade tipje", contents.Version, formatVersion)
	}
	if contents.Documents == nil {
		contents.Documents = make(map[string]document)
	}
	return contents, nil
}

func (s *Store) save(contents *fileContents) error {
	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize storage: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("%w: failed to write storage: %v", storage.ErrUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: failed to write storage: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// withFile runs fn against a fresh copy of the file under both locks and
// saves the result when fn reports a change
func (s *Store) withFile(fn func(c *fileContents) (changed bool, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return storage.ErrNotLoaded
	}
	if err := s.lock.acquire(); err != nil {
		return err
	}
	defer s.lock.release()

	contents, err := s.read()
	if err != nil {
		return err
	}
	changed, err := fn(contents)
	if err != nil || !changed {
		return err
	}
	return s.save(contents)
}

func snapshot(c *fileContents, p, id string) storage.Snapshot {
	doc, ok := c.Documents[p]
	if !ok {
		return storage.Snapshot{Path: p, ID: id}
	}
	return storage.Snapshot{Path: p, ID: id, Data: doc.Data.Clone(), Version: doc.Version, Exists: true}
}

func apply(c *fileContents, w storage.Write) {
	p := storage.CleanPath(w.Path)
	if w.Delete {
		delete(c.Documents, p)
		return
	}
	current, ok := c.Documents[p]
	var base storage.Fields
	if ok {
		base = current.Data
	}
	c.Documents[p] = document{Data: storage.Apply(base, w), Version: current.Version + 1}
}

func (s *Store) Read(ctx context.Context, p string) (storage.Snapshot, error) {
	_, id, err := storage.SplitPath(p)
	if err != nil {
		return storage.Snapshot{}, err
	}
	var snap storage.Snapshot
	err = s.withFile(func(c *fileContents) (bool, error) {
		snap = snapshot(c, storage.CleanPath(p), id)
		return false, nil
	})
	if err != nil {
		return snap, err
	}
	if !snap.Exists {
		return snap, storage.ErrNotFound
	}
	return snap, nil
}

func (s *Store) Write(ctx context.Context, p string, data storage.Fields, merge bool) error {
	if _, _, err := storage.SplitPath(p); err != nil {
		return err
	}
	return s.withFile(func(c *fileContents) (bool, error) {
		apply(c, storage.Write{Path: p, Data: data, Merge: merge})
		return true, nil
	})
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Snapshot, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	prefix := storage.CleanPath(collection) + "/"

	var out []storage.Snapshot
	err := s.withFile(func(c *fileContents) (bool, error) {
		for p := range c.Documents {
			rest, ok := strings.CutPrefix(p, prefix)
			if !ok || strings.Contains(rest, "/") {
				continue
			}
			out = append(out, snapshot(c, p, rest))
		}
		return false, nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, err
}

func (s *Store) RunAtomic(ctx context.Context, readPaths []string, mutate storage.MutateFunc) error {
	return s.withFile(func(c *fileContents) (bool, error) {
		reads := make(map[string]storage.Snapshot, len(readPaths))
		for _, p := range readPaths {
			_, id, err := storage.SplitPath(p)
			if err != nil {
				return false, err
			}
			reads[p] = snapshot(c, storage.CleanPath(p), id)
		}

		writes, err := mutate(reads)
		if err != nil {
			return false, err
		}
		for _, w := range writes {
			if _, _, err := storage.SplitPath(w.Path); err != nil {
				return false, err
			}
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		for _, w := range writes {
			apply(c, w)
		}
		return len(writes) > 0, nil
	})
}

func (s *Store) BatchDelete(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if _, _, err := storage.SplitPath(p); err != nil {
			return err
		}
	}
	return s.withFile(func(c *fileContents) (bool, error) {
		for _, p := range paths {
			delete(c.Documents, storage.CleanPath(p))
		}
		return true, nil
	})
}
