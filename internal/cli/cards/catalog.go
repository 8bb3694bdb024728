package cards

import (
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/models"
)

type CatalogCmd struct {
	Kind string `arg:"" optional:"" help:"Only list this kind."`
}

func (c *CatalogCmd) Run(app *cli.Context) error {
	kinds := []models.DefinitionKind{models.KindRule, models.KindChore, models.KindReward}
	if c.Kind != "" {
		kind, err := ParseKind(c.Kind)
		if err != nil {
			return err
		}
		kinds = []models.DefinitionKind{kind}
	}
	for i, kind := range kinds {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s templates:\n", kind)
		for _, t := range app.Catalog.Templates(kind) {
			fmt.Printf("  %-24s %4d 🥜  %s\n", t.Key, t.Peanuts, t.Title)
		}
	}
	fmt.Println("\nAdd one with 'tipje card pick <key>'.")
	return nil
}
