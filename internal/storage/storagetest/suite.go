// Package storagetest holds the conformance suite every storage adapter must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/julianstephens/tipje/internal/storage"
)

// Factory returns an initialized provider backed by fresh, empty storage
type Factory func(t *testing.T) storage.Provider

// Options tunes the suite for adapter capabilities
type Options struct {
	// Serialized adapters hold an exclusive lock for the whole RunAtomic call,
	// so a write issued from inside mutate cannot be observed as a conflict.
	Serialized bool
}

type counter struct {
	N int64 `json:"n"`
}

// Run executes the conformance suite
func Run(t *testing.T, newProvider Factory, opts Options) {
	t.Run("read missing document", func(t *testing.T) {
		p := newProvider(t)
		_, err := p.Read(context.Background(), "accounts/none")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Read() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("write and read", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()

		if err := p.Write(ctx, "accounts/a", storage.Fields{"name": "Sam", "balance": 4}, false); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		snap, err := p.Read(ctx, "accounts/a")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !snap.Exists || snap.ID != "a" || snap.Path != "accounts/a" {
			t.Errorf("snapshot = %+v", snap)
		}
		if snap.Version < 1 {
			t.Errorf("Version = %d, want >= 1", snap.Version)
		}

		if err := p.Write(ctx, "accounts/a", storage.Fields{"balance": 7}, true); err != nil {
			t.Fatalf("merge Write() error = %v", err)
		}
		var got struct {
			Name    string `json:"name"`
			Balance int64  `json:"balance"`
		}
		snap2, err := p.Read(ctx, "accounts/a")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if err := snap2.Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Name != "Sam" || got.Balance != 7 {
			t.Errorf("after merge got %+v, want name kept and balance 7", got)
		}
		if snap2.Version <= snap.Version {
			t.Errorf("Version did not increase: %d -> %d", snap.Version, snap2.Version)
		}

		if err := p.Write(ctx, "accounts/a", storage.Fields{"balance": 1}, false); err != nil {
			t.Fatalf("set Write() error = %v", err)
		}
		snap3, _ := p.Read(ctx, "accounts/a")
		if _, ok := snap3.Data["name"]; ok {
			t.Error("non-merge write should replace the document")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		p := newProvider(t)
		err := p.Write(context.Background(), "accounts", storage.Fields{}, false)
		if !errors.Is(err, storage.ErrInvalidPath) {
			t.Errorf("Write() error = %v, want ErrInvalidPath", err)
		}
	})

	t.Run("list direct children", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		for _, path := range []string{
			"accounts/a/kids/k2",
			"accounts/a/kids/k1",
			"accounts/a/kids/k1/rules/r1",
			"accounts/b/kids/k3",
		} {
			if err := p.Write(ctx, path, storage.Fields{"p": path}, false); err != nil {
				t.Fatalf("Write(%s) error = %v", path, err)
			}
		}

		snaps, err := p.List(ctx, "accounts/a/kids")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(snaps) != 2 {
			t.Fatalf("List() returned %d documents, want 2", len(snaps))
		}
		if snaps[0].ID != "k1" || snaps[1].ID != "k2" {
			t.Errorf("List() order = %s, %s; want k1, k2", snaps[0].ID, snaps[1].ID)
		}

		empty, err := p.List(ctx, "accounts/c/kids")
		if err != nil {
			t.Fatalf("List() on empty collection error = %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("List() on empty collection returned %d documents", len(empty))
		}
	})

	t.Run("atomic commit", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		if err := p.Write(ctx, "c/x", storage.MustEncode(counter{N: 1}), false); err != nil {
			t.Fatal(err)
		}

		err := p.RunAtomic(ctx, []string{"c/x", "c/y"}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
			if !reads["c/x"].Exists {
				return nil, errors.New("c/x should exist")
			}
			if reads["c/y"].Exists {
				return nil, errors.New("c/y should not exist")
			}
			var c counter
			if err := reads["c/x"].Decode(&c); err != nil {
				return nil, err
			}
			return []storage.Write{
				storage.Merge("c/x", storage.Fields{"n": c.N + 1}),
				storage.Set("c/y", storage.Fields{"n": 10}),
				storage.Set("log/1", storage.Fields{"msg": "hi"}),
			}, nil
		})
		if err != nil {
			t.Fatalf("RunAtomic() error = %v", err)
		}

		assertCounter(t, p, "c/x", 2)
		assertCounter(t, p, "c/y", 10)
		if _, err := p.Read(ctx, "log/1"); err != nil {
			t.Errorf("unread document was not written: %v", err)
		}
	})

	t.Run("atomic abort writes nothing", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := p.RunAtomic(ctx, []string{"c/x"}, func(map[string]storage.Snapshot) ([]storage.Write, error) {
			return []storage.Write{storage.Set("c/x", storage.Fields{"n": 1})}, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("RunAtomic() error = %v, want boom", err)
		}
		if _, err := p.Read(ctx, "c/x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("aborted unit left a document behind: %v", err)
		}
	})

	t.Run("atomic delete", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		if err := p.Write(ctx, "c/x", storage.Fields{"n": 1}, false); err != nil {
			t.Fatal(err)
		}
		err := p.RunAtomic(ctx, []string{"c/x"}, func(map[string]storage.Snapshot) ([]storage.Write, error) {
			return []storage.Write{storage.Delete("c/x")}, nil
		})
		if err != nil {
			t.Fatalf("RunAtomic() error = %v", err)
		}
		if _, err := p.Read(ctx, "c/x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Read() after delete error = %v, want ErrNotFound", err)
		}
		snaps, _ := p.List(ctx, "c")
		if len(snaps) != 0 {
			t.Errorf("deleted document still listed")
		}
	})

	if !opts.Serialized {
		t.Run("conflicting write is detected", func(t *testing.T) {
			p := newProvider(t)
			ctx := context.Background()
			if err := p.Write(ctx, "c/x", storage.MustEncode(counter{N: 1}), false); err != nil {
				t.Fatal(err)
			}

			err := p.RunAtomic(ctx, []string{"c/x"}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
				// Another writer sneaks in between read and commit
				if err := p.Write(ctx, "c/x", storage.MustEncode(counter{N: 100}), false); err != nil {
					return nil, err
				}
				return []storage.Write{storage.Merge("c/x", storage.Fields{"n": 2})}, nil
			})
			if !errors.Is(err, storage.ErrConflict) {
				t.Fatalf("RunAtomic() error = %v, want ErrConflict", err)
			}
			assertCounter(t, p, "c/x", 100)
		})

		t.Run("conflicting create is detected", func(t *testing.T) {
			p := newProvider(t)
			ctx := context.Background()

			err := p.RunAtomic(ctx, []string{"c/new"}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
				if err := p.Write(ctx, "c/new", storage.MustEncode(counter{N: 5}), false); err != nil {
					return nil, err
				}
				return []storage.Write{storage.Set("c/new", storage.Fields{"n": 1})}, nil
			})
			if !errors.Is(err, storage.ErrConflict) {
				t.Fatalf("RunAtomic() error = %v, want ErrConflict", err)
			}
			assertCounter(t, p, "c/new", 5)
		})

		t.Run("delete and re-create is detected", func(t *testing.T) {
			p := newProvider(t)
			ctx := context.Background()
			if err := p.Write(ctx, "c/x", storage.MustEncode(counter{N: 1}), false); err != nil {
				t.Fatal(err)
			}

			err := p.RunAtomic(ctx, []string{"c/x"}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
				if err := p.BatchDelete(ctx, []string{"c/x"}); err != nil {
					return nil, err
				}
				if err := p.Write(ctx, "c/x", storage.MustEncode(counter{N: 7}), false); err != nil {
					return nil, err
				}
				return []storage.Write{storage.Merge("c/x", storage.Fields{"n": 2})}, nil
			})
			if !errors.Is(err, storage.ErrConflict) {
				t.Fatalf("RunAtomic() error = %v, want ErrConflict", err)
			}
			assertCounter(t, p, "c/x", 7)
		})
	}

	t.Run("concurrent increments", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		if err := p.Write(ctx, "c/x", storage.MustEncode(counter{}), false); err != nil {
			t.Fatal(err)
		}

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- incrementWithRetry(ctx, p, "c/x")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("increment failed: %v", err)
			}
		}
		assertCounter(t, p, "c/x", workers)
	})

	t.Run("batch delete", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		paths := []string{"k/1", "k/2", "k/1/sub/a"}
		for _, path := range paths {
			if err := p.Write(ctx, path, storage.Fields{"v": true}, false); err != nil {
				t.Fatal(err)
			}
		}
		if err := p.BatchDelete(ctx, append(paths, "k/missing")); err != nil {
			t.Fatalf("BatchDelete() error = %v", err)
		}
		for _, path := range paths {
			if _, err := p.Read(ctx, path); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("%s survived BatchDelete: %v", path, err)
			}
		}
	})
}

func incrementWithRetry(ctx context.Context, p storage.Provider, path string) error {
	for attempt := 0; attempt < 200; attempt++ {
		err := p.RunAtomic(ctx, []string{path}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
			var c counter
			if err := reads[path].Decode(&c); err != nil {
				return nil, err
			}
			return []storage.Write{storage.Merge(path, storage.Fields{"n": c.N + 1})}, nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("increment of %s did not settle", path)
}

func assertCounter(t *testing.T, p storage.Provider, path string, want int64) {
	t.Helper()
	snap, err := p.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read(%s) error = %v", path, err)
	}
	var c counter
	if err := snap.Decode(&c); err != nil {
		t.Fatal(err)
	}
	if c.N != want {
		t.Errorf("%s = %d, want %d", path, c.N, want)
	}
}
