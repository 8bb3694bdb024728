package system

import (
	"context"
	"testing"

	"github.com/julianstephens/tipje/internal/backup"
	"github.com/julianstephens/tipje/internal/cli/clitest"
)

func TestDoctorCmd_HealthyDB(t *testing.T) {
	app, dbPath := clitest.NewContext(t)
	clitest.Onboard(t, app, "Noor")
	if _, err := backup.NewManager(dbPath).CreateBackup(); err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}

	if err := (&DoctorCmd{}).Run(app, context.Background()); err != nil {
		t.Errorf("doctor command failed on healthy database: %v", err)
	}
}

func TestDoctorCmd_WarningsOnly(t *testing.T) {
	app, _ := clitest.NewContext(t)

	// Onboarding and backups are optional checks
	if err := (&DoctorCmd{}).Run(app, context.Background()); err != nil {
		t.Errorf("optional checks must not fail doctor: %v", err)
	}
}

func TestDoctorChecks(t *testing.T) {
	app, _ := clitest.NewContext(t)
	ctx := context.Background()

	if err := checkSchemaVersion(app, ctx); err != nil {
		t.Errorf("checkSchemaVersion() = %v", err)
	}
	if err := checkAccount(app, ctx); err != nil {
		t.Errorf("checkAccount() = %v", err)
	}
	if err := checkOnboarding(app, ctx); err == nil {
		t.Error("checkOnboarding() should warn before any kid exists")
	}
	if err := checkBackupsPresent(app, ctx); err == nil {
		t.Error("checkBackupsPresent() should warn without backups")
	}
	if err := checkLedgerIntegrity(app, ctx); err != nil {
		t.Errorf("checkLedgerIntegrity() = %v", err)
	}

	clitest.Onboard(t, app, "Noor")
	if err := checkOnboarding(app, ctx); err != nil {
		t.Errorf("checkOnboarding() after onboarding = %v", err)
	}
}
