package kids

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
)

type PinCmd struct {
	Set PinSetCmd `cmd:"" help:"Set or change the guardian PIN."`
}

type PinSetCmd struct {
	NewPIN  string `arg:"" optional:"" name:"pin" help:"New PIN, 4 to 6 digits. Prompted for when omitted."`
	Current string `help:"Current PIN when changing an existing one." env:"TIPJE_PIN"`
}

func (c *PinSetCmd) Run(app *cli.Context, ctx context.Context) error {
	if err := app.RequireGuardian(ctx, c.Current); err != nil {
		return err
	}
	pin := c.NewPIN
	if pin == "" {
		var err error
		if pin, err = cli.PromptPIN("New guardian PIN"); err != nil {
			return err
		}
	}
	if err := app.Family.SetPIN(ctx, pin); err != nil {
		return err
	}
	fmt.Println("✓ Guardian PIN set")
	return nil
}
