package migration

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/julianstephens/tipje/migrations"
)

// Set POSTGRES_TEST_URL to run, e.g.
// POSTGRES_TEST_URL="postgres://user@localhost:5432/testdb?sslmode=disable"
func setupPostgresTestDB(t *testing.T) *sql.DB {
	t.Helper()
	connStr := os.Getenv("POSTGRES_TEST_URL")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping PostgreSQL integration test")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open postgres database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping postgres database: %v", err)
	}

	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS schema_version")
		db.Exec("DROP TABLE IF EXISTS documents")
		db.Close()
	})
	return db
}

func TestPostgresSetVersion(t *testing.T) {
	ctx := context.Background()
	db := setupPostgresTestDB(t)
	runner := NewRunner(db, os.DirFS(t.TempDir()), DriverPostgres)

	for _, v := range []int{1, 2} {
		if err := runner.SetVersion(ctx, v); err != nil {
			t.Fatalf("SetVersion(%d) failed: %v", v, err)
		}
		got, err := runner.GetCurrentVersion(ctx)
		if err != nil {
			t.Fatalf("GetCurrentVersion failed: %v", err)
		}
		if got != v {
			t.Errorf("expected version %d, got %d", v, got)
		}
	}
}

func TestPostgresEmbeddedMigrations(t *testing.T) {
	ctx := context.Background()
	db := setupPostgresTestDB(t)
	sub, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(db, sub, DriverPostgres)

	if _, err := runner.ApplyMigrations(ctx, nil); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	count, err := runner.ApplyMigrations(ctx, nil)
	if err != nil || count != 0 {
		t.Errorf("second ApplyMigrations = %d, %v; want 0, nil", count, err)
	}
}
