// Package clitest builds command contexts over throwaway SQLite stores.
package clitest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/julianstephens/tipje/internal/catalog"
	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/config"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage/sqlite"
)

// PIN is the guardian PIN set by Onboard
const PIN = "1234"

// NewContext returns a context over an initialized SQLite store with a
// family account
func NewContext(t *testing.T) (*cli.Context, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tipje.db")
	store := sqlite.NewStore(dbPath)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	app := cli.NewContext(store, config.Default(), catalog.Curated())
	if _, err := app.Family.EnsureAccount(context.Background(), "Test family"); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return app, dbPath
}

// Onboard completes onboarding with one kid who has a rule worth 3, a chore
// worth 2 and a reward costing 4
func Onboard(t *testing.T, app *cli.Context, name string) models.Kid {
	t.Helper()
	ctx := context.Background()
	kid, err := app.Family.CreateKid(ctx, name)
	if err != nil {
		t.Fatalf("failed to create kid: %v", err)
	}
	acct, err := app.Family.Account(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.HasPIN() {
		if err := app.Family.SetPIN(ctx, PIN); err != nil {
			t.Fatalf("failed to set PIN: %v", err)
		}
	}
	l := app.Family.Ledger(kid.ID)
	for _, card := range []struct {
		kind    models.DefinitionKind
		title   string
		peanuts int64
	}{
		{models.KindRule, "Brush teeth", 3},
		{models.KindChore, "Make the bed", 2},
		{models.KindReward, "Ice cream", 4},
	} {
		if _, err := l.AddDefinition(ctx, card.kind, card.title, card.peanuts); err != nil {
			t.Fatalf("failed to add %s: %v", card.kind, err)
		}
	}
	return kid
}
