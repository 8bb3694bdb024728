package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/migration"
	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/migrations"
)

type Store struct {
	path string
	db   *sql.DB
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

func (s *Store) dsn() string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_txlock=immediate", s.path, constants.SQLiteBusyTimeout)
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers inside this process; busy_timeout
	// covers other processes sharing the file.
	db.SetMaxOpenConns(1)
	s.db = db
	return nil
}

func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if s.db == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("%w: run 'tipje init' first", storage.ErrNotLoaded)
	}

	if err := s.open(); err != nil {
		return err
	}
	return s.runner().ValidateVersion(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) Location() string {
	return s.path
}

// DB exposes the handle for maintenance commands
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) runner() *migration.Runner {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		// embedded directory is fixed at build time
		panic(err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverSQLite)
}

func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.runner().ApplyMigrations(ctx, func(msg string) {
		logger.Debug(msg)
	})
	return err
}

// Migrate applies pending migrations and reports progress through logFn
func (s *Store) Migrate(ctx context.Context, logFn func(string)) (int, error) {
	if s.db == nil {
		return 0, storage.ErrNotLoaded
	}
	return s.runner().ApplyMigrations(ctx, logFn)
}

// SchemaStatus returns the current and latest schema versions
func (s *Store) SchemaStatus(ctx context.Context) (int, int, error) {
	if s.db == nil {
		return 0, 0, storage.ErrNotLoaded
	}
	return s.runner().Status(ctx)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func readDoc(ctx context.Context, q queryer, p string) (storage.Snapshot, error) {
	_, id, err := storage.SplitPath(p)
	if err != nil {
		return storage.Snapshot{}, err
	}
	p = storage.CleanPath(p)
	snap := storage.Snapshot{Path: p, ID: id}

	var data string
	err = q.QueryRowContext(ctx, "SELECT data, version FROM documents WHERE path = ?", p).Scan(&data, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if snap.Data, err = storage.ParseFields([]byte(data)); err != nil {
		return snap, err
	}
	snap.Exists = true
	return snap, nil
}

func applyWrite(ctx context.Context, q queryer, w storage.Write) error {
	collection, id, err := storage.SplitPath(w.Path)
	if err != nil {
		return err
	}
	p := collection + "/" + id

	if w.Delete {
		if _, err := q.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
		return nil
	}

	var current storage.Fields
	if w.Merge {
		snap, err := readDoc(ctx, q, p)
		if err != nil {
			return err
		}
		if snap.Exists {
			current = snap.Data
		}
	}
	data, err := storage.Apply(current, w).Marshal()
	if err != nil {
		return err
	}

	var version int64
	err = q.QueryRowContext(ctx, "UPDATE document_clock SET value = value + 1 WHERE id = 1 RETURNING value").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to advance the version clock: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (path, collection, doc_id, data, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		p, collection, id, string(data), version, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, p string) (storage.Snapshot, error) {
	if s.db == nil {
		return storage.Snapshot{}, storage.ErrNotLoaded
	}
	snap, err := readDoc(ctx, s.db, p)
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
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT path, doc_id, data, version FROM documents WHERE collection = ? ORDER BY path",
		storage.CleanPath(collection))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []storage.Snapshot
	for rows.Next() {
		var snap storage.Snapshot
		var data string
		if err := rows.Scan(&snap.Path, &snap.ID, &data, &snap.Version); err != nil {
			return nil, err
		}
		if snap.Data, err = storage.ParseFields([]byte(data)); err != nil {
			return nil, err
		}
		snap.Exists = true
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) RunAtomic(ctx context.Context, readPaths []string, mutate storage.MutateFunc) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}

	reads := make(map[string]storage.Snapshot, len(readPaths))
	for _, p := range readPaths {
		snap, err := readDoc(ctx, s.db, p)
		if err != nil {
			return err
		}
		reads[p] = snap
	}

	writes, err := mutate(reads)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	for p, before := range reads {
		var version int64
		err := tx.QueryRowContext(ctx, "SELECT version FROM documents WHERE path = ?", storage.CleanPath(p)).Scan(&version)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		if version != before.Version {
			return storage.ErrConflict
		}
	}

	for _, w := range writes {
		if err := applyWrite(ctx, tx, w); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
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
