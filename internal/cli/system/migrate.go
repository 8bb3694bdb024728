package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
)

// migrator is implemented by the SQL backed stores
type migrator interface {
	Migrate(ctx context.Context, logFn func(string)) (int, error)
	SchemaStatus(ctx context.Context) (current, latest int, err error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *cli.Context, ctx context.Context) error {
	m, ok := app.Store.(migrator)
	if !ok {
		fmt.Printf("Storage %s has no schema migrations.\n", app.Store.Location())
		return nil
	}

	count, err := m.Migrate(ctx, func(msg string) {
		fmt.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		fmt.Println("No migrations to apply. Database is up to date.")
	} else {
		fmt.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
