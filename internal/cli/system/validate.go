package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/validation"
)

type ValidateCmd struct {
	Kid string `help:"Only validate this kid (id or name)."`
}

func (cmd *ValidateCmd) Run(app *cli.Context, ctx context.Context) error {
	var kids []models.Kid
	if cmd.Kid != "" {
		kid, err := app.Family.FindKid(ctx, cmd.Kid)
		if err != nil {
			return err
		}
		kids = []models.Kid{kid}
	} else {
		all, err := app.Family.Kids(ctx)
		if err != nil {
			return err
		}
		kids = all
	}

	if len(kids) == 0 {
		fmt.Println("No kid profiles to validate.")
		return nil
	}

	validator := validation.New()
	total := 0
	for _, kid := range kids {
		snap, err := app.Family.Ledger(kid.ID).Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to read ledger of %s: %w", kid.Name, err)
		}
		result := validator.ValidateSnapshot(snap)
		fmt.Printf("%s:\n%s\n", kid.Name, result.FormatReport())
		total += len(result.Conflicts)
	}

	if total > 0 {
		return fmt.Errorf("validation found %d conflict(s)", total)
	}
	return nil
}
