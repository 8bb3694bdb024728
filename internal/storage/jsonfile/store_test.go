package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/internal/storage/storagetest"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int           { return m.pid }
func (m *mockProcess) PPid() int          { return 0 }
func (m *mockProcess) Executable() string { return m.executable }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "tipje.json"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Provider {
		return newTestStore(t)
	}, storagetest.Options{Serialized: true})
}

func TestSharedFileBetweenStores(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t)
	b := NewStore(a.Location())
	if err := b.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := a.Write(ctx, "accounts/x", storage.Fields{"name": "from a"}, false); err != nil {
		t.Fatal(err)
	}
	snap, err := b.Read(ctx, "accounts/x")
	if err != nil {
		t.Fatalf("second store did not see the write: %v", err)
	}
	if snap.Data["name"] != "from a" {
		t.Errorf("name = %v", snap.Data["name"])
	}
	if _, err := os.Stat(a.Location() + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lockfile left behind: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err := s.Load(context.Background()); !errors.Is(err, storage.ErrNotLoaded) {
		t.Errorf("Load() error = %v, want ErrNotLoaded", err)
	}
}

func TestLoadRejectsNewerFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tipje.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "documents": {}}`), 0600); err != nil {
		t.Fatal(err)
	}
	err := NewStore(path).Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestParseLock(t *testing.T) {
	tests := []struct {
		content string
		wantErr bool
	}{
		{"123|1700000000000000000", false},
		{"", true},
		{"123", true},
		{"abc|1", true},
		{"-4|1", true},
		{"123|soon", true},
	}
	for _, tt := range tests {
		_, _, err := parseLock(tt.content)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLock(%q) error = %v, wantErr %v", tt.content, err, tt.wantErr)
		}
	}
}

func TestStaleLockIsBroken(t *testing.T) {
	oldFind := findProcessFunc
	defer func() { findProcessFunc = oldFind }()

	s := newTestStore(t)
	otherPID := os.Getpid() + 1
	writeLock := func(acquired time.Time) {
		t.Helper()
		content := fmt.Sprintf("%d|%d", otherPID, acquired.UnixNano())
		if err := os.WriteFile(s.lock.path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("dead owner", func(t *testing.T) {
		writeLock(time.Now())
		findProcessFunc = func(pid int) (ps.Process, error) { return nil, nil }
		if err := s.Write(context.Background(), "a/b", storage.Fields{"v": 1}, false); err != nil {
			t.Errorf("Write() error = %v", err)
		}
	})

	t.Run("old lock of a live owner", func(t *testing.T) {
		writeLock(time.Now().Add(-time.Hour))
		findProcessFunc = func(pid int) (ps.Process, error) {
			return &mockProcess{pid: pid, executable: "tipje"}, nil
		}
		if err := s.Write(context.Background(), "a/b", storage.Fields{"v": 2}, false); err != nil {
			t.Errorf("Write() error = %v", err)
		}
	})

	t.Run("old malformed lock", func(t *testing.T) {
		if err := os.WriteFile(s.lock.path, []byte("garbage"), 0600); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-time.Minute)
		if err := os.Chtimes(s.lock.path, old, old); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Read(context.Background(), "a/b"); err != nil {
			t.Errorf("Read() error = %v", err)
		}
	})
}

func TestMalformedLockGrace(t *testing.T) {
	oldNow := nowFunc
	defer func() { nowFunc = oldNow }()

	s := newTestStore(t)
	if err := os.WriteFile(s.lock.path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.lock.path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		age   time.Duration
		stale bool
	}{
		{"just created", 0, false},
		{"within grace", constants.MalformedLockGrace / 2, false},
		{"past grace", constants.MalformedLockGrace + time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nowFunc = func() time.Time { return info.ModTime().Add(tt.age) }
			if stale, reason := s.lock.isStale(); stale != tt.stale {
				t.Errorf("isStale() = %v (%q), want %v", stale, reason, tt.stale)
			}
		})
	}
}

func TestLiveLockTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the lock retry budget")
	}
	oldFind := findProcessFunc
	defer func() { findProcessFunc = oldFind }()
	findProcessFunc = func(pid int) (ps.Process, error) {
		return &mockProcess{pid: pid, executable: "tipje"}, nil
	}

	s := newTestStore(t)
	content := fmt.Sprintf("%d|%d", os.Getpid()+1, time.Now().UnixNano())
	if err := os.WriteFile(s.lock.path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := s.Read(context.Background(), "a/b")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("Read() error = %v, want ErrUnavailable", err)
	}
}
