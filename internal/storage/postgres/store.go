package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/migration"
	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/migrations"
)

// SQLSTATE codes that mean another transaction won the race
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type Store struct {
	connStr string
	db      *sql.DB
}

func New(connStr string) *Store {
	return &Store{connStr: withSearchPath(connStr)}
}

// NewWithDB wraps an already opened handle, skipping connection setup
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) open(ctx context.Context) error {
	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(s.connStr) {
			return fmt.Errorf("%w: %v (hint: try adding ?sslmode=disable to your connection string)", storage.ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	s.db = db
	return nil
}

func (s *Store) Init(ctx context.Context) error {
	if s.db == nil {
		if err := s.open(ctx); err != nil {
			return err
		}
	}
	if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(constants.PostgresSchema)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.runner().ApplyMigrations(ctx, func(msg string) { logger.Debug(msg) }); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		if err := s.open(ctx); err != nil {
			return err
		}
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
	return Redact(s.connStr)
}

func (s *Store) runner() *migration.Runner {
	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		panic(err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverPostgres)
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

// translate maps driver errors onto the storage sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", storage.ErrConflict, pqErr.Message)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
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

	var data []byte
	err = q.QueryRowContext(ctx, "SELECT data, version FROM documents WHERE path = $1", p).Scan(&data, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return snap, translate(err)
	}
	if snap.Data, err = storage.ParseFields(data); err != nil {
		return snap, err
	}
	snap.Exists = true
	return snap, nil
}

func applyWrite(ctx context.Context, q queryer, w storage.Write, created bool) error {
	collection, id, err := storage.SplitPath(w.Path)
	if err != nil {
		return err
	}
	p := collection + "/" + id

	if w.Delete {
		_, err := q.ExecContext(ctx, "DELETE FROM documents WHERE path = $1", p)
		return translate(err)
	}

	var current storage.Fields
	if w.Merge && !created {
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

	if created {
		// The unit read this path as absent: a plain insert turns a racing
		// create into a unique violation.
		_, err = q.ExecContext(ctx,
			"INSERT INTO documents (path, collection, doc_id, data, version, updated_at) VALUES ($1, $2, $3, $4, nextval('document_version_seq'), now())",
			p, collection, id, string(data))
		return translate(err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (path, collection, doc_id, data, version, updated_at)
		VALUES ($1, $2, $3, $4, nextval('document_version_seq'), now())
		ON CONFLICT (path) DO UPDATE SET
			data = EXCLUDED.data,
			version = EXCLUDED.version,
			updated_at = now()`,
		p, collection, id, string(data))
	return translate(err)
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
		"SELECT path, doc_id, data, version FROM documents WHERE collection = $1 ORDER BY path",
		storage.CleanPath(collection))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []storage.Snapshot
	for rows.Next() {
		var snap storage.Snapshot
		var data []byte
		if err := rows.Scan(&snap.Path, &snap.ID, &data, &snap.Version); err != nil {
			return nil, err
		}
		if snap.Data, err = storage.ParseFields(data); err != nil {
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
		reads[storage.CleanPath(p)] = snap
	}

	writes, err := mutate(reads)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range readPaths {
		p = storage.CleanPath(p)
		var version int64
		err := tx.QueryRowContext(ctx, "SELECT version FROM documents WHERE path = $1 FOR UPDATE", p).Scan(&version)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return translate(err)
		}
		if version != reads[p].Version {
			return storage.ErrConflict
		}
	}

	inserted := make(map[string]bool)
	for _, w := range writes {
		p := storage.CleanPath(w.Path)
		snap, wasRead := reads[p]
		created := wasRead && !snap.Exists && !w.Delete && !inserted[p]
		if err := applyWrite(ctx, tx, w, created); err != nil {
			return err
		}
		if created {
			inserted[p] = true
		}
	}

	return translate(tx.Commit())
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
