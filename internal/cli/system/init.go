package system

import (
	"context"
	"fmt"
	"os"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/onboarding"
)

type InitCmd struct {
	Family string `help:"Name of the family account." default:"Our family"`
	Force  bool   `help:"Delete an existing SQLite database before initialization."`
}

func (c *InitCmd) Run(app *cli.Context, ctx context.Context) error {
	if c.Force {
		dbPath, ok := app.SQLitePath()
		if !ok {
			return fmt.Errorf("--force only supports SQLite storage")
		}
		if _, err := os.Stat(dbPath); err == nil {
			if err := app.Store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			if err := os.Remove(dbPath); err != nil {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
			fmt.Printf("Deleted existing database at: %s\n", dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := app.Store.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("Initialized tipje storage at: %s\n", app.Store.Location())

	acct, err := app.Family.EnsureAccount(ctx, c.Family)
	if err != nil {
		return err
	}
	fmt.Printf("Family account: %s\n", acct.Name)

	step, err := app.Gate().Current(ctx)
	if err != nil {
		return err
	}
	if step != onboarding.StepDone {
		fmt.Printf("Next: %s\n", onboarding.Hint(step))
	}
	return nil
}
