package cards

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
)

type CardCmd struct {
	Add        CardAddCmd        `cmd:"" help:"Add a custom rule, chore or reward."`
	Pick       CardPickCmd       `cmd:"" help:"Add a card from the curated catalog."`
	List       CardListCmd       `cmd:"" help:"List a kid's cards."`
	Edit       CardEditCmd       `cmd:"" help:"Change the title or peanuts of a custom card."`
	Deactivate CardDeactivateCmd `cmd:"" help:"Hide a card without losing its history."`
	Activate   CardActivateCmd   `cmd:"" help:"Show a deactivated card again."`
	Delete     CardDeleteCmd     `cmd:"" help:"Delete a custom card that was never used."`
}

// ParseKind accepts rule(s), chore(s) and reward(s)
func ParseKind(s string) (models.DefinitionKind, error) {
	kind, ok := models.ParseKind(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return "", fmt.Errorf("%w: %q (use rule, chore or reward)", ledger.ErrInvalidKind, s)
	}
	return kind, nil
}

// FindCard resolves a card of kind by id or case-insensitive title,
// active or not
func FindCard(ctx context.Context, l *ledger.Ledger, kind models.DefinitionKind, ref string) (models.Definition, error) {
	defs, err := l.Definitions(ctx, kind)
	if err != nil {
		return models.Definition{}, err
	}
	for _, d := range defs {
		if d.ID == ref {
			return d, nil
		}
	}
	for _, d := range defs {
		if strings.EqualFold(d.Title, strings.TrimSpace(ref)) {
			return d, nil
		}
	}
	return models.Definition{}, fmt.Errorf("%w: %s %q", ledger.ErrDefinitionNotFound, kind, ref)
}

func printCard(d models.Definition) {
	origin := "custom"
	if !d.Custom {
		origin = "catalog"
	}
	status := ""
	if !d.Active {
		status = " [INACTIVE]"
	}
	fmt.Printf("  %-30s %4d 🥜  %-7s %s%s\n", d.Title, d.Peanuts, origin, d.ID, status)
}

// guarded resolves the kid's ledger after checking the guardian PIN
func guarded(app *cli.Context, ctx context.Context, kid, pin string) (*ledger.Ledger, models.Kid, error) {
	if err := app.RequireGuardian(ctx, pin); err != nil {
		return nil, models.Kid{}, err
	}
	return app.Ledger(ctx, kid)
}

type CardAddCmd struct {
	Kind    string `arg:"" help:"rule, chore or reward."`
	Title   string `arg:"" help:"Card title."`
	Peanuts int64  `arg:"" help:"Peanuts earned, or the price of a reward."`
	Kid     string `short:"k" help:"Kid profile (id or name)."`
	PIN     string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *CardAddCmd) Run(app *cli.Context, ctx context.Context) error {
	kind, err := ParseKind(c.Kind)
	if err != nil {
		return err
	}
	l, kid, err := guarded(app, ctx, c.Kid, c.PIN)
	if err != nil {
		return err
	}
	def, err := l.AddDefinition(ctx, kind, c.Title, c.Peanuts)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s for %s: %s (%d peanuts)\n", kind, kid.Name, def.Title, def.Peanuts)
	return nil
}

type CardPickCmd struct {
	Templates []string `arg:"" help:"Catalog keys, see 'tipje catalog'."`
	Kid       string   `short:"k" help:"Kid profile (id or name)."`
	PIN       string   `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *CardPickCmd) Run(app *cli.Context, ctx context.Context) error {
	l, kid, err := guarded(app, ctx, c.Kid, c.PIN)
	if err != nil {
		return err
	}
	for _, key := range c.Templates {
		tpl, err := app.Catalog.Template(key)
		if err != nil {
			return err
		}
		def, err := l.AddFromTemplate(ctx, tpl)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s for %s: %s (%d peanuts)\n", def.Kind, kid.Name, def.Title, def.Peanuts)
	}
	return nil
}

type CardListCmd struct {
	Kind string `arg:"" optional:"" help:"Only list this kind."`
	Kid  string `short:"k" help:"Kid profile (id or name)."`
	All  bool   `short:"a" help:"Include deactivated cards."`
}

func (c *CardListCmd) Run(app *cli.Context, ctx context.Context) error {
	kinds := []models.DefinitionKind{models.KindRule, models.KindChore, models.KindReward}
	if c.Kind != "" {
		kind, err := ParseKind(c.Kind)
		if err != nil {
			return err
		}
		kinds = []models.DefinitionKind{kind}
	}
	l, kid, err := app.Ledger(ctx, c.Kid)
	if err != nil {
		return err
	}

	fmt.Printf("Cards of %s:\n", kid.Name)
	for _, kind := range kinds {
		defs, err := l.Definitions(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Printf("\n%ss:\n", strings.ToUpper(string(kind[:1]))+string(kind[1:]))
		shown := 0
		for _, d := range defs {
			if !d.Active && !c.All {
				continue
			}
			printCard(d)
			shown++
		}
		if shown == 0 {
			fmt.Println("  (none)")
		}
	}
	return nil
}

type CardEditCmd struct {
	Kind    string `arg:"" help:"rule, chore or reward."`
	Card    string `arg:"" help:"Card id or title."`
	Title   string `help:"New title."`
	Peanuts int64  `help:"New peanuts value."`
	Kid     string `short:"k" help:"Kid profile (id or name)."`
	PIN     string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *CardEditCmd) Run(app *cli.Context, ctx context.Context) error {
	kind, err := ParseKind(c.Kind)
	if err != nil {
		return err
	}
	if c.Title == "" && c.Peanuts == 0 {
		return fmt.Errorf("nothing to change, pass --title and/or --peanuts")
	}
	l, _, err := guarded(app, ctx, c.Kid, c.PIN)
	if err != nil {
		return err
	}
	card, err := FindCard(ctx, l, kind, c.Card)
	if err != nil {
		return err
	}

	var update ledger.DefinitionUpdate
	if c.Title != "" {
		update.Title = &c.Title
	}
	if c.Peanuts != 0 {
		update.Peanuts = &c.Peanuts
	}
	def, err := l.UpdateDefinition(ctx, kind, card.ID, update)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s: %s (%d peanuts)\n", kind, def.Title, def.Peanuts)
	return nil
}

type CardDeactivateCmd struct {
	Kind string `arg:"" help:"rule, chore or reward."`
	Card string `arg:"" help:"Card id or title."`
	Kid  string `short:"k" help:"Kid profile (id or name)."`
	PIN  string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *CardDeactivateCmd) Run(app *cli.Context, ctx context.Context) error {
	return setActive(app, ctx, c.Kind, c.Card, c.Kid, c.PIN, false)
}

type CardActivateCmd struct {
	Kind string `arg:"" help:"rule, chore or reward."`
	Card string `arg:"" help:"Card id or title."`
	Kid  string `short:"k" help:"Kid profile (id or name)."`
	PIN  string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *CardActivateCmd) Run(app *cli.Context, ctx context.Context) error {
	return setActive(app, ctx, c.Kind, c.Card, c.Kid, c.PIN, true)
}

func setActive(app *cli.Context, ctx context.Context, rawKind, ref, kidRef, pin string, active bool) error {
	kind, err := ParseKind(rawKind)
	if err != nil {
		return err
	}
	l, _, err := guarded(app, ctx, kidRef, pin)
	if err != nil {
		return err
	}
	card, err := FindCard(ctx, l, kind, ref)
	if err != nil {
		return err
	}
	if _, err := l.SetActive(ctx, kind, card.ID, active); err != nil {
		return err
	}
	if active {
		fmt.Printf("Activated %s: %s\n", kind, card.Title)
	} else {
		fmt.Printf("Deactivated %s: %s\n", kind, card.Title)
	}
	return nil
}

type CardDeleteCmd struct {
	Kind string `arg:"" help:"rule, chore or reward."`
	Card string `arg:"" help:"Card id or title."`
	Kid  string `short:"k" help:"Kid profile (id or name)."`
	PIN  string `help:"Guardian PIN." env:"TIPJE_PIN"`
}

func (c *CardDeleteCmd) Run(app *cli.Context, ctx context.Context) error {
	kind, err := ParseKind(c.Kind)
	if err != nil {
		return err
	}
	l, _, err := guarded(app, ctx, c.Kid, c.PIN)
	if err != nil {
		return err
	}
	card, err := FindCard(ctx, l, kind, c.Card)
	if err != nil {
		return err
	}
	if err := l.DeleteDefinition(ctx, kind, card.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted %s: %s\n", kind, card.Title)
	return nil
}
