// Package redis stores documents as hashes and uses WATCH/MULTI for atomic units.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/storage"
)

const (
	fieldData    = "data"
	fieldVersion = "version"
)

type Store struct {
	url    string
	prefix string
	rdb    *redis.Client
}

// New creates a store for a redis:// URL. Keys are namespaced by prefix.
func New(url, prefix string) *Store {
	if prefix == "" {
		prefix = constants.RedisKeyPrefix
	}
	return &Store{url: url, prefix: prefix}
}

// NewWithClient wraps an existing client
func NewWithClient(rdb *redis.Client, prefix string) *Store {
	s := New("", prefix)
	s.rdb = rdb
	return s
}

func (s *Store) docKey(p string) string {
	return s.prefix + ":doc:" + storage.CleanPath(p)
}

func (s *Store) collectionKey(c string) string {
	return s.prefix + ":col:" + storage.CleanPath(c)
}

func (s *Store) connect(ctx context.Context) error {
	if s.rdb != nil {
		return nil
	}
	opt, err := redis.ParseURL(s.url)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	s.rdb = rdb
	return nil
}

func (s *Store) Init(ctx context.Context) error {
	return s.connect(ctx)
}

func (s *Store) Load(ctx context.Context) error {
	return s.connect(ctx)
}

func (s *Store) Close() error {
	if s.rdb != nil {
		err := s.rdb.Close()
		s.rdb = nil
		return err
	}
	return nil
}

func (s *Store) Location() string {
	if s.url == "" {
		return "redis://" + s.prefix
	}
	if opt, err := redis.ParseURL(s.url); err == nil {
		return fmt.Sprintf("redis://%s/%d", opt.Addr, opt.DB)
	}
	return "redis://<invalid>"
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return storage.ErrConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
}

type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

func (s *Store) readDoc(ctx context.Context, c hashReader, p string) (storage.Snapshot, error) {
	_, id, err := storage.SplitPath(p)
	if err != nil {
		return storage.Snapshot{}, err
	}
	p = storage.CleanPath(p)
	snap := storage.Snapshot{Path: p, ID: id}

	vals, err := c.HMGet(ctx, s.docKey(p), fieldData, fieldVersion).Result()
	if err != nil {
		return snap, translate(err)
	}
	if vals[0] == nil {
		return snap, nil
	}
	data, _ := vals[0].(string)
	if snap.Data, err = storage.ParseFields([]byte(data)); err != nil {
		return snap, err
	}
	if v, ok := vals[1].(string); ok {
		if snap.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return snap, fmt.Errorf("%w: %s has a malformed version %q: %v", storage.ErrUnavailable, p, v, err)
		}
	}
	snap.Exists = true
	return snap, nil
}

func (s *Store) Read(ctx context.Context, p string) (storage.Snapshot, error) {
	if s.rdb == nil {
		return storage.Snapshot{}, storage.ErrNotLoaded
	}
	snap, err := s.readDoc(ctx, s.rdb, p)
	if err != nil {
		return snap, err
	}
	if !snap.Exists {
		return snap, storage.ErrNotFound
	}
	return snap, nil
}

func (s *Store) Write(ctx context.Context, p string, data storage.Fields, merge bool) error {
	return s.RunAtomic(ctx, nil, func(map[string]storage.Snapshot) ([]storage.Write, error) {
		return []storage.Write{{Path: p, Data: data, Merge: merge}}, nil
	})
}

func (s *Store) List(ctx context.Context, collection string) ([]storage.Snapshot, error) {
	if s.rdb == nil {
		return nil, storage.ErrNotLoaded
	}
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}

	// Members share score 0, so ZRANGE returns them in lexical order
	paths, err := s.rdb.ZRange(ctx, s.collectionKey(collection), 0, -1).Result()
	if err != nil {
		return nil, translate(err)
	}

	out := make([]storage.Snapshot, 0, len(paths))
	for _, p := range paths {
		snap, err := s.readDoc(ctx, s.rdb, p)
		if err != nil {
			return nil, err
		}
		if snap.Exists {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *Store) RunAtomic(ctx context.Context, readPaths []string, mutate storage.MutateFunc) error {
	if s.rdb == nil {
		return storage.ErrNotLoaded
	}

	keys := make([]string, 0, len(readPaths))
	for _, p := range readPaths {
		if _, _, err := storage.SplitPath(p); err != nil {
			return err
		}
		keys = append(keys, s.docKey(p))
	}

	// abort carries errors that must reach the caller untranslated
	var abort error
	fail := func(err error) error {
		abort = err
		return err
	}

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		reads := make(map[string]storage.Snapshot, len(readPaths))
		for _, p := range readPaths {
			snap, err := s.readDoc(ctx, tx, p)
			if err != nil {
				return fail(err)
			}
			reads[p] = snap
		}

		writes, err := mutate(reads)
		if err != nil {
			return fail(err)
		}

		// Merges into unread documents need their current body, watched too
		docs := make(map[string]storage.Fields, len(writes))
		for _, w := range writes {
			if _, _, err := storage.SplitPath(w.Path); err != nil {
				return fail(err)
			}
			p := storage.CleanPath(w.Path)
			if !w.Merge {
				continue
			}
			if snap, ok := reads[p]; ok {
				if snap.Exists {
					docs[p] = snap.Data
				}
				continue
			}
			if err := tx.Watch(ctx, s.docKey(p)).Err(); err != nil {
				return err
			}
			snap, err := s.readDoc(ctx, tx, p)
			if err != nil {
				return fail(err)
			}
			if snap.Exists {
				docs[p] = snap.Data
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				collection, _, _ := storage.SplitPath(w.Path)
				p := storage.CleanPath(w.Path)
				if w.Delete {
					pipe.Del(ctx, s.docKey(p))
					pipe.ZRem(ctx, s.collectionKey(collection), p)
					delete(docs, p)
					continue
				}
				var current storage.Fields
				if existing, ok := docs[p]; ok && w.Merge {
					current = existing
				}
				next := storage.Apply(current, w)
				data, err := next.Marshal()
				if err != nil {
					return fail(err)
				}
				docs[p] = next
				pipe.HSet(ctx, s.docKey(p), fieldData, string(data))
				pipe.HIncrBy(ctx, s.docKey(p), fieldVersion, 1)
				pipe.ZAdd(ctx, s.collectionKey(collection), &redis.Z{Score: 0, Member: p})
			}
			return nil
		})
		return err
	}, keys...)
	if abort != nil {
		return abort
	}
	return translate(err)
}

func (s *Store) BatchDelete(ctx context.Context, paths []string) error {
	writes := make([]storage.Write, 0, len(paths))
	for _, p := range paths {
		writes = append(writes, storage.Delete(p))
	}
	return s.RunAtomic(ctx, nil, func(map[string]storage.Snapshot) ([]storage.Write, error) {
		return writes, nil
	})
}
