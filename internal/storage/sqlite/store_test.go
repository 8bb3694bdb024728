package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "nested", "tipje.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Provider {
		return newTestStore(t)
	}, storagetest.Options{})
}

func TestLoadRequiresInit(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.db"))
	err := s.Load(context.Background())
	if !errors.Is(err, storage.ErrNotLoaded) {
		t.Errorf("Load() error = %v, want ErrNotLoaded", err)
	}
}

func TestReopenKeepsDocuments(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tipje.db")

	s := NewStore(dbPath)
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "accounts/a/kids/k", storage.Fields{"balance": 12}, false); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened := NewStore(dbPath)
	if err := reopened.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer reopened.Close()

	snap, err := reopened.Read(ctx, "accounts/a/kids/k")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var kid struct {
		Balance int64 `json:"balance"`
	}
	if err := snap.Decode(&kid); err != nil {
		t.Fatal(err)
	}
	if kid.Balance != 12 {
		t.Errorf("balance = %d, want 12", kid.Balance)
	}

	current, latest, err := reopened.SchemaStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current != latest || current == 0 {
		t.Errorf("SchemaStatus() = %d/%d", current, latest)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	n, err := s.Migrate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Migrate() applied %d migrations on an initialized store", n)
	}
}
