package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Provider {
		s := New(t.Name())
		if err := s.Init(context.Background()); err != nil {
			t.Fatal(err)
		}
		return s
	}, storagetest.Options{})
}

func TestNotLoaded(t *testing.T) {
	s := New("")
	if _, err := s.Read(context.Background(), "a/b"); !errors.Is(err, storage.ErrNotLoaded) {
		t.Errorf("Read() error = %v, want ErrNotLoaded", err)
	}
	if s.Location() != "memory://default" {
		t.Errorf("Location() = %q", s.Location())
	}
}

func TestDeletedDocumentReadsAbsent(t *testing.T) {
	ctx := context.Background()
	s := New("v")
	_ = s.Init(ctx)

	_ = s.Write(ctx, "a/b", storage.Fields{"x": 1}, false)
	_ = s.Write(ctx, "a/b", storage.Fields{"x": 2}, false)
	_ = s.BatchDelete(ctx, []string{"a/b"})
	if s.Len() != 0 {
		t.Fatalf("Len() = %d after delete", s.Len())
	}

	err := s.RunAtomic(ctx, []string{"a/b"}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		if reads["a/b"].Exists || reads["a/b"].Version != 0 {
			t.Errorf("deleted document read as %+v", reads["a/b"])
		}
		return []storage.Write{storage.Set("a/b", storage.Fields{"x": 3})}, nil
	})
	if err != nil {
		t.Fatalf("RunAtomic() error = %v", err)
	}
}
