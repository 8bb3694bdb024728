package kids

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/constants"
)

type KidCmd struct {
	Add    KidAddCmd    `cmd:"" help:"Add a kid profile."`
	List   KidListCmd   `cmd:"" help:"List kid profiles."`
	Delete KidDeleteCmd `cmd:"" help:"Delete a kid profile and all of its history."`
}

type KidAddCmd struct {
	Name string `arg:"" help:"Kid's name."`
	PIN  string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *KidAddCmd) Run(app *cli.Context, ctx context.Context) error {
	if err := app.RequireGuardian(ctx, c.PIN); err != nil {
		return err
	}
	kid, err := app.Family.CreateKid(ctx, c.Name)
	if err != nil {
		return err
	}
	fmt.Printf("Added kid: %s (%s)\n", kid.Name, kid.ID)
	return nil
}

type KidListCmd struct{}

func (c *KidListCmd) Run(app *cli.Context, ctx context.Context) error {
	kids, err := app.Family.Kids(ctx)
	if err != nil {
		return err
	}
	if len(kids) == 0 {
		fmt.Println("No kid profiles found.")
		return nil
	}
	for _, kid := range kids {
		fmt.Printf("%-12s %4d 🥜  %s  since %s\n", kid.Name, kid.Balance, kid.ID, kid.CreatedAt.Local().Format(constants.DateFormat))
	}
	fmt.Printf("\n%d of %d profiles used\n", len(kids), app.Family.MaxKids())
	return nil
}

type KidDeleteCmd struct {
	Kid string `arg:"" help:"Kid profile (id or name)."`
	PIN string `help:"Guardian PIN." env:"TIPJE_PIN"`
	Yes bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *KidDeleteCmd) Run(app *cli.Context, ctx context.Context) error {
	if err := app.RequireGuardian(ctx, c.PIN); err != nil {
		return err
	}
	kid, err := app.Family.FindKid(ctx, c.Kid)
	if err != nil {
		return err
	}
	if !c.Yes {
		ok, err := cli.Confirm(fmt.Sprintf("Delete %s with all cards, purchases and history?", kid.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}
	}
	if err := app.Family.DeleteKid(ctx, kid.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted kid: %s\n", kid.Name)
	return nil
}
