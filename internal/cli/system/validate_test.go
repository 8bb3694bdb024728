package system

import (
	"context"
	"testing"

	"github.com/julianstephens/tipje/internal/cli/clitest"
	"github.com/julianstephens/tipje/internal/models"
)

func TestValidateCmd(t *testing.T) {
	app, _ := clitest.NewContext(t)
	ctx := context.Background()

	if err := (&ValidateCmd{}).Run(app, ctx); err != nil {
		t.Errorf("no kids: %v", err)
	}

	kid := clitest.Onboard(t, app, "Noor")
	l := app.Family.Ledger(kid.ID)
	rules := l.AvailableRules(ctx)
	if _, err := l.RecordCompletion(ctx, rules[0].ID, models.KindRule); err != nil {
		t.Fatal(err)
	}

	if err := (&ValidateCmd{}).Run(app, ctx); err != nil {
		t.Errorf("healthy ledger reported conflicts: %v", err)
	}
	if err := (&ValidateCmd{Kid: "noor"}).Run(app, ctx); err != nil {
		t.Errorf("single kid: %v", err)
	}
	if err := (&ValidateCmd{Kid: "nobody"}).Run(app, ctx); err == nil {
		t.Error("unknown kid should fail")
	}
}

func TestOnboardingCmd(t *testing.T) {
	app, _ := clitest.NewContext(t)
	ctx := context.Background()

	if err := (&OnboardingCmd{}).Run(app, ctx); err != nil {
		t.Errorf("OnboardingCmd before setup: %v", err)
	}
	clitest.Onboard(t, app, "Noor")
	if err := (&OnboardingCmd{}).Run(app, ctx); err != nil {
		t.Errorf("OnboardingCmd after setup: %v", err)
	}
}

func TestMigrateCmd(t *testing.T) {
	app, _ := clitest.NewContext(t)

	if err := (&MigrateCmd{}).Run(app, context.Background()); err != nil {
		t.Errorf("MigrateCmd on an up to date database: %v", err)
	}
}
