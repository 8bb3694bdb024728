package ledgers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/cli/cards"
	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
)

type BuyCmd struct {
	Reward string `arg:"" help:"Reward id or title."`
	Kid    string `short:"k" help:"Kid profile (id or name)."`
}

func (c *BuyCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := onboarded(app, ctx, c.Kid)
	if err != nil {
		return err
	}
	reward, err := cards.FindCard(ctx, l, models.KindReward, c.Reward)
	if err != nil {
		return err
	}
	p, err := l.PurchaseReward(ctx, reward.ID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s bought %s for %d peanuts, it is waiting in the basket\n", kid.Name, p.Title, p.Cost)
	fmt.Printf("  Balance: %d\n", l.CurrentBalance(ctx))
	return nil
}

type BasketCmd struct {
	Kid string `short:"k" help:"Kid profile (id or name)."`
}

func (c *BasketCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := app.Ledger(ctx, c.Kid)
	if err != nil {
		return err
	}
	entries := slices.Collect(l.BasketEntries(ctx))
	if len(entries) == 0 {
		fmt.Printf("The basket of %s is empty.\n", kid.Name)
		return nil
	}
	fmt.Printf("Basket of %s:\n", kid.Name)
	for _, p := range entries {
		fmt.Printf("  %-30s %4d 🥜  bought %s  %s\n", p.Title, p.Cost, p.PurchasedAt.Local().Format(constants.TimestampFormat), p.ID)
	}
	return nil
}

// findInBasket resolves a purchase in the basket by id or reward title
func findInBasket(ctx context.Context, l *ledger.Ledger, ref string) (models.RewardPurchase, error) {
	for p := range l.BasketEntries(ctx) {
		if p.ID == ref || strings.EqualFold(p.Title, strings.TrimSpace(ref)) {
			return p, nil
		}
	}
	return models.RewardPurchase{}, fmt.Errorf("%w: %q is not in the basket", ledger.ErrInvalidStateTransition, ref)
}

type GiveCmd struct {
	Purchase string `arg:"" help:"Purchase id or reward title."`
	Kid      string `short:"k" help:"Kid profile (id or name)."`
	PIN      string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *GiveCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := onboarded(app, ctx, c.Kid)
	if err != nil {
		return err
	}
	if err := app.RequireGuardian(ctx, c.PIN); err != nil {
		return err
	}
	p, err := findInBasket(ctx, l, c.Purchase)
	if err != nil {
		return err
	}
	given, err := l.ConfirmGiven(ctx, p.ID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s received %s\n", kid.Name, given.Title)
	return nil
}

type UnbasketCmd struct {
	Purchase string `arg:"" help:"Purchase id or reward title."`
	Kid      string `short:"k" help:"Kid profile (id or name)."`
}

func (c *UnbasketCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := onboarded(app, ctx, c.Kid)
	if err != nil {
		return err
	}
	p, err := findInBasket(ctx, l, c.Purchase)
	if err != nil {
		return err
	}
	tx, err := l.RemoveFromBasket(ctx, p.ID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Removed %s from the basket of %s, refunded %d peanuts\n", p.Title, kid.Name, tx.Amount)
	fmt.Printf("  Balance: %d\n", l.CurrentBalance(ctx))
	return nil
}
