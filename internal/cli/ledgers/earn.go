package ledgers

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/cli/cards"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
)

// onboarded resolves the kid's ledger once onboarding is done
func onboarded(app *cli.Context, ctx context.Context, kid string) (*ledger.Ledger, models.Kid, error) {
	if err := app.RequireOnboarded(ctx); err != nil {
		return nil, models.Kid{}, err
	}
	return app.Ledger(ctx, kid)
}

type CompleteCmd struct {
	Kind string `arg:"" help:"rule or chore."`
	Card string `arg:"" help:"Card id or title."`
	Kid  string `short:"k" help:"Kid profile (id or name)."`
}

func (c *CompleteCmd) Run(app *cli.Context, ctx context.Context) error {
	kind, err := cards.ParseKind(c.Kind)
	if err != nil {
		return err
	}
	l, kid, err := onboarded(app, ctx, c.Kid)
	if err != nil {
		return err
	}
	card, err := cards.FindCard(ctx, l, kind, c.Card)
	if err != nil {
		return err
	}
	tx, err := l.RecordCompletion(ctx, card.ID, kind)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s: +%d peanuts for %s\n", kid.Name, tx.Amount, card.Title)
	fmt.Printf("  Balance: %d\n", l.CurrentBalance(ctx))
	return nil
}
