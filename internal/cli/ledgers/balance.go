package ledgers

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/constants"
)

type BalanceCmd struct {
	Kid string `short:"k" help:"Kid profile (id or name). All kids when omitted."`
}

func (c *BalanceCmd) Run(app *cli.Context, ctx context.Context) error {
	if c.Kid != "" {
		l, kid, err := app.Ledger(ctx, c.Kid)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d peanuts\n", kid.Name, l.CurrentBalance(ctx))
		return nil
	}
	kids, err := app.Family.Kids(ctx)
	if err != nil {
		return err
	}
	if len(kids) == 0 {
		fmt.Println("No kid profiles found.")
		return nil
	}
	for _, kid := range kids {
		fmt.Printf("%s: %d peanuts\n", kid.Name, app.Family.Ledger(kid.ID).CurrentBalance(ctx))
	}
	return nil
}

type HistoryCmd struct {
	Kid   string `short:"k" help:"Kid profile (id or name)."`
	Limit int    `short:"n" help:"Show only the most recent entries (0 for all)." default:"20"`
}

func (c *HistoryCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := app.Ledger(ctx, c.Kid)
	if err != nil {
		return err
	}
	txs, err := l.Transactions(ctx)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Printf("No history for %s yet.\n", kid.Name)
		return nil
	}
	if c.Limit > 0 && len(txs) > c.Limit {
		txs = txs[len(txs)-c.Limit:]
	}
	fmt.Printf("History of %s:\n", kid.Name)
	for _, tx := range txs {
		fmt.Printf("  %s  %-15s %+5d  %s\n", tx.Timestamp.Local().Format(constants.TimestampFormat), tx.Type, tx.Amount, tx.Note)
	}
	fmt.Printf("\nBalance: %d\n", l.CurrentBalance(ctx))
	return nil
}

type ResetCmd struct {
	Kid  string `short:"k" help:"Kid profile (id or name)."`
	Note string `help:"Reason recorded in the history."`
	PIN  string `help:"Guardian PIN." env:"TIPJE_PIN"`
	Yes  bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *ResetCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := onboarded(app, ctx, c.Kid)
	if err != nil {
		return err
	}
	if err := app.RequireGuardian(ctx, c.PIN); err != nil {
		return err
	}
	if !c.Yes {
		ok, err := cli.Confirm(fmt.Sprintf("Reset the balance of %s to zero?", kid.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}
	}
	tx, err := l.ResetBalance(ctx, c.Note)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Balance of %s reset (%+d)\n", kid.Name, tx.Amount)
	return nil
}

type AdjustCmd struct {
	Amount int64  `arg:"" help:"Peanuts to add, negative to take away."`
	Kid    string `short:"k" help:"Kid profile (id or name)."`
	Note   string `help:"Reason recorded in the history."`
	PIN    string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *AdjustCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := onboarded(app, ctx, c.Kid)
	if err != nil {
		return err
	}
	if err := app.RequireGuardian(ctx, c.PIN); err != nil {
		return err
	}
	tx, err := l.AdjustBalance(ctx, c.Amount, c.Note)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Adjusted the balance of %s by %+d\n", kid.Name, tx.Amount)
	fmt.Printf("  Balance: %d\n", l.CurrentBalance(ctx))
	return nil
}
