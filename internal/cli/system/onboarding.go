package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/onboarding"
)

type OnboardingCmd struct{}

func (cmd *OnboardingCmd) Run(app *cli.Context, ctx context.Context) error {
	state, err := app.Gate().State(ctx)
	if err != nil {
		return err
	}
	current := onboarding.Next(state)

	reached := false
	for _, step := range onboarding.Steps {
		switch {
		case step == current:
			reached = true
			fmt.Printf("→ %s\n", step)
		case reached:
			fmt.Printf("  %s\n", step)
		default:
			fmt.Printf("✓ %s\n", step)
		}
	}

	for _, k := range state.Kids {
		mark := "✓"
		if !k.Ready() {
			mark = "✗"
		}
		fmt.Printf("\n%s %s: %d rule(s), %d chore(s), %d reward(s)", mark, k.Name, k.Rules, k.Chores, k.Rewards)
	}
	if len(state.Kids) > 0 {
		fmt.Println()
	}

	fmt.Printf("\n%s\n", onboarding.Hint(current))
	return nil
}
