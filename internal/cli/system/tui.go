package system

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/tui"
)

type TuiCmd struct {
	Kid string `help:"Kid profile to open (id or name)."`
}

func (c *TuiCmd) Run(app *cli.Context, ctx context.Context) error {
	if err := app.RequireOnboarded(ctx); err != nil {
		return err
	}
	l, kid, err := app.Ledger(ctx, c.Kid)
	if err != nil {
		return err
	}

	app.PerformAutomaticBackup()

	var opts []tui.Option
	acct, err := app.Family.Account(ctx)
	if err != nil {
		return err
	}
	if acct.HasPIN() {
		opts = append(opts, tui.WithPINCheck(app.Family.VerifyPIN))
	}

	p := tea.NewProgram(tui.NewModel(ctx, l, kid.Name, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui failed: %w", err)
	}
	return nil
}
