package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/tipje/internal/backup"
	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/onboarding"
	"github.com/julianstephens/tipje/internal/validation"
)

type DoctorCmd struct{}

type check struct {
	name     string
	needsDB  bool
	optional bool
	run      func(app *cli.Context, ctx context.Context) error
}

var checks = []check{
	{name: "Schema version", needsDB: true, run: checkSchemaVersion},
	{name: "Family account", needsDB: true, run: checkAccount},
	{name: "Onboarding", needsDB: true, optional: true, run: checkOnboarding},
	{name: "Backups present", optional: true, run: checkBackupsPresent},
	{name: "Ledger integrity", needsDB: true, run: checkLedgerIntegrity},
	{name: "Clock/timezone", run: checkClockTimezone},
}

func (cmd *DoctorCmd) Run(app *cli.Context, ctx context.Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	dbReachable := true
	if err := checkStorageReachable(app, ctx); err != nil {
		fmt.Printf("❌ Storage reachable: FAIL\n")
		fmt.Printf("   Error: %v\n", err)
		hasError = true
		dbReachable = false
	} else {
		fmt.Printf("✓ Storage reachable: OK (%s)\n", app.Store.Location())
	}

	for _, c := range checks {
		if c.needsDB && !dbReachable {
			fmt.Printf("⊘ %s: SKIPPED (storage not reachable)\n", c.name)
			continue
		}
		err := c.run(app, ctx)
		switch {
		case err == nil:
			fmt.Printf("✓ %s: OK\n", c.name)
		case c.optional:
			fmt.Printf("⚠ %s: WARNING\n", c.name)
			fmt.Printf("   %v\n", err)
		default:
			fmt.Printf("❌ %s: FAIL\n", c.name)
			fmt.Printf("   Error: %v\n", err)
			hasError = true
		}
	}

	fmt.Println()
	if hasError {
		fmt.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}

	fmt.Println("All diagnostics passed!")
	return nil
}

func checkStorageReachable(app *cli.Context, ctx context.Context) error {
	if err := app.Store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load storage: %w", err)
	}
	if _, err := app.Family.Account(ctx); err != nil && !errors.Is(err, family.ErrAccountNotFound) {
		return err
	}
	return nil
}

func checkSchemaVersion(app *cli.Context, ctx context.Context) error {
	m, ok := app.Store.(migrator)
	if !ok {
		return nil
	}
	current, latest, err := m.SchemaStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current != latest {
		return fmt.Errorf("schema version %d, latest is %d (run 'tipje migrate')", current, latest)
	}
	return nil
}

func checkAccount(app *cli.Context, ctx context.Context) error {
	if _, err := app.Family.Account(ctx); err != nil {
		return fmt.Errorf("%w (run 'tipje init')", err)
	}
	return nil
}

func checkOnboarding(app *cli.Context, ctx context.Context) error {
	step, err := app.Gate().Current(ctx)
	if err != nil {
		return err
	}
	if step != onboarding.StepDone {
		return fmt.Errorf("onboarding stops at %s: %s", step, onboarding.Hint(step))
	}
	return nil
}

func checkBackupsPresent(app *cli.Context, _ context.Context) error {
	path, ok := app.SQLitePath()
	if !ok {
		return nil
	}
	backups, err := backup.NewManager(path).ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found (run 'tipje backup create')")
	}
	return nil
}

func checkLedgerIntegrity(app *cli.Context, ctx context.Context) error {
	kids, err := app.Family.Kids(ctx)
	if err != nil {
		if errors.Is(err, family.ErrAccountNotFound) {
			return nil
		}
		return err
	}
	v := validation.New()
	var conflicts int
	for _, kid := range kids {
		snap, err := app.Family.Ledger(kid.ID).Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to read ledger of %s: %w", kid.Name, err)
		}
		conflicts += len(v.ValidateSnapshot(snap).Conflicts)
	}
	if conflicts > 0 {
		return fmt.Errorf("%d conflict(s) found (run 'tipje validate')", conflicts)
	}
	return nil
}

func checkClockTimezone(*cli.Context, context.Context) error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	return nil
}
