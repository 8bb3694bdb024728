package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/tipje/internal/catalog"
	"github.com/julianstephens/tipje/internal/cli"
	"github.com/julianstephens/tipje/internal/cli/backups"
	"github.com/julianstephens/tipje/internal/cli/cards"
	"github.com/julianstephens/tipje/internal/cli/kids"
	"github.com/julianstephens/tipje/internal/cli/ledgers"
	"github.com/julianstephens/tipje/internal/cli/system"
	"github.com/julianstephens/tipje/internal/config"
	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/errors"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/storage"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"string" default:"${config_file}"`
	Storage string `help:"Storage location overriding the config: SQLite path, .json file, memory://name, redis://... or postgres (credentials must NOT be embedded, use TIPJE_DB_CONNECTION or the OS keyring)."`
	Debug   bool   `help:"Enable debug logging."`

	Init       system.InitCmd       `cmd:"" help:"Initialize tipje storage and the family account."`
	Migrate    system.MigrateCmd    `cmd:"" help:"Run database migrations."`
	Doctor     system.DoctorCmd     `cmd:"" help:"Run health checks and diagnostics."`
	Validate   system.ValidateCmd   `cmd:"" help:"Validate ledgers for conflicts."`
	Onboarding system.OnboardingCmd `cmd:"" help:"Show onboarding progress."`
	Tui        system.TuiCmd        `cmd:"" help:"Launch the interactive TUI." default:"1"`
	Serve      system.ServeCmd      `cmd:"" help:"Serve the HTTP API."`
	Keyring    system.KeyringCmd    `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	Pin        kids.PinCmd          `cmd:"" help:"Manage the guardian PIN."`
	Kid        kids.KidCmd          `cmd:"" help:"Manage kid profiles."`
	Card       cards.CardCmd        `cmd:"" help:"Manage rule, chore and reward cards."`
	Catalog    cards.CatalogCmd     `cmd:"" help:"Browse the curated card catalog."`
	Complete   ledgers.CompleteCmd  `cmd:"" help:"Record a completed rule or chore."`
	Buy        ledgers.BuyCmd       `cmd:"" help:"Buy a reward into the basket."`
	Basket     ledgers.BasketCmd    `cmd:"" help:"Show rewards waiting in the basket."`
	Give       ledgers.GiveCmd      `cmd:"" help:"Mark a basket reward as given."`
	Unbasket   ledgers.UnbasketCmd  `cmd:"" help:"Remove a reward from the basket and refund it."`
	Balance    ledgers.BalanceCmd   `cmd:"" help:"Show peanut balances."`
	History    ledgers.HistoryCmd   `cmd:"" help:"Show the transaction history."`
	Reset      ledgers.ResetCmd     `cmd:"" help:"Reset a balance to zero."`
	Adjust     ledgers.AdjustCmd    `cmd:"" help:"Correct a balance by a signed amount."`
	Backup     backups.BackupCmd    `cmd:"" help:"Manage database backups."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Peanut balances and rewards for kids"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_file": constants.DefaultConfigFile,
		},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		errors.Fatal(err)
	}
	if CLI.Storage != "" {
		cfg.Storage = CLI.Storage
	}
	cfg.Debug = cfg.Debug || CLI.Debug

	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: cfg.Dir()}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		errors.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Provider
	if needsStore(kctx.Command()) {
		if store, err = cli.OpenStore(cfg.Storage, os.Getenv); err != nil {
			errors.Fatal(err)
		}
		// Init loads the store itself
		if kctx.Selected() != nil && kctx.Selected().Name != "init" {
			if err := store.Load(ctx); err != nil {
				errors.Fatal(err)
			}
		}
	}

	app := cli.NewContext(store, cfg, cat)
	kctx.BindTo(ctx, (*context.Context)(nil))

	err = kctx.Run(app)
	if store != nil {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Failed to close storage", "error", cerr)
		}
	}
	if err != nil {
		stop()
		errors.Fatal(err)
	}
}

// needsStore reports whether command touches the ledger storage. Keyring
// commands must work before a PostgreSQL connection string exists.
func needsStore(command string) bool {
	for _, prefix := range []string{"keyring", "catalog"} {
		if strings.HasPrefix(command, prefix) {
			return false
		}
	}
	return true
}
