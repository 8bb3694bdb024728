package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/tipje/internal/backup"
	"github.com/julianstephens/tipje/internal/catalog"
	"github.com/julianstephens/tipje/internal/config"
	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/keyring"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/metrics"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/onboarding"
	"github.com/julianstephens/tipje/internal/storage"
	"github.com/julianstephens/tipje/internal/storage/jsonfile"
	"github.com/julianstephens/tipje/internal/storage/memory"
	"github.com/julianstephens/tipje/internal/storage/postgres"
	"github.com/julianstephens/tipje/internal/storage/redis"
	"github.com/julianstephens/tipje/internal/storage/sqlite"
)

// PostgresKeyword selects Postgres with the connection string taken from
// TIPJE_DB_CONNECTION or the OS keyring
const PostgresKeyword = "postgres"

type Context struct {
	Store   storage.Provider
	Config  config.Config
	Family  *family.Family
	Catalog catalog.Provider
	Metrics *metrics.Recorder
}

// NewContext wires the family and its ledgers to store using cfg
func NewContext(store storage.Provider, cfg config.Config, cat catalog.Provider) *Context {
	rec := metrics.NewRecorder()
	f := family.New(store, cfg.Account,
		family.WithMaxKids(cfg.Family.MaxKids),
		family.WithLedgerOptions(
			ledger.WithMaxAttempts(cfg.Ledger.MaxAttempts),
			ledger.WithRetryBackoff(cfg.Ledger.RetryBackoff),
			ledger.WithObserver(rec),
		),
	)
	return &Context{
		Store:   store,
		Config:  cfg,
		Family:  f,
		Catalog: cat,
		Metrics: rec,
	}
}

// IsPostgres reports whether spec addresses a Postgres backend
func IsPostgres(spec string) bool {
	return spec == PostgresKeyword || strings.HasPrefix(spec, "postgres://") || strings.HasPrefix(spec, "postgresql://")
}

// OpenStore selects the storage adapter from the storage setting. The store
// is returned unopened.
func OpenStore(spec string, getenv func(string) string) (storage.Provider, error) {
	switch {
	case IsPostgres(spec):
		connStr := spec
		if spec == PostgresKeyword {
			var (
				source keyring.Source
				err    error
			)
			connStr, source, err = keyring.ResolveConnectionString(getenv, config.EnvDBConnection)
			if err != nil {
				return nil, fmt.Errorf("no PostgreSQL connection string: set %s or run 'tipje keyring set': %w", config.EnvDBConnection, err)
			}
			logger.Debug("Using PostgreSQL connection string", "source", source)
		}
		if err := postgres.ValidateConnString(connStr); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, fmt.Errorf("%w: use ~/.pgpass or PGPASSWORD instead", err)
			}
			return nil, err
		}
		return postgres.New(connStr), nil
	case strings.HasPrefix(spec, "redis://"), strings.HasPrefix(spec, "rediss://"):
		return redis.New(spec, ""), nil
	case strings.HasPrefix(spec, "memory://"):
		return memory.New(strings.TrimPrefix(spec, "memory://")), nil
	case strings.EqualFold(filepath.Ext(spec), ".json"):
		return jsonfile.NewStore(config.ExpandPath(spec)), nil
	default:
		return sqlite.NewStore(config.ExpandPath(spec)), nil
	}
}

// Gate returns the onboarding gate over the family
func (c *Context) Gate() *onboarding.Gate {
	return onboarding.NewGate(c.Family)
}

// RequireOnboarded refuses ledger mutations until onboarding is done
func (c *Context) RequireOnboarded(ctx context.Context) error {
	return c.Gate().Require(ctx)
}

// Ledger resolves a kid by id or name. An empty ref picks the only kid.
func (c *Context) Ledger(ctx context.Context, ref string) (*ledger.Ledger, models.Kid, error) {
	var (
		kid models.Kid
		err error
	)
	if strings.TrimSpace(ref) == "" {
		kids, kerr := c.Family.Kids(ctx)
		if kerr != nil {
			return nil, models.Kid{}, kerr
		}
		switch len(kids) {
		case 0:
			return nil, models.Kid{}, fmt.Errorf("%w: no kid profiles yet", ledger.ErrProfileNotFound)
		case 1:
			kid = kids[0]
		default:
			return nil, models.Kid{}, fmt.Errorf("more than one kid profile, choose one with --kid")
		}
	} else {
		kid, err = c.Family.FindKid(ctx, ref)
		if err != nil {
			return nil, models.Kid{}, err
		}
	}
	return c.Family.Ledger(kid.ID), kid, nil
}

// RequireGuardian checks the guardian PIN. Without a PIN set nothing is
// checked; an empty pin prompts for it on the terminal.
func (c *Context) RequireGuardian(ctx context.Context, pin string) error {
	acct, err := c.Family.Account(ctx)
	if err != nil {
		return err
	}
	if !acct.HasPIN() {
		return nil
	}
	if pin == "" {
		if pin, err = PromptPIN("Guardian PIN"); err != nil {
			return err
		}
	}
	return c.Family.VerifyPIN(ctx, pin)
}

// PromptPIN asks for a PIN with masked input
func PromptPIN(title string) (string, error) {
	var pin string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Validate(family.ValidatePIN).
				Value(&pin),
		),
	).WithTheme(huh.ThemeBase()).Run()
	if err != nil {
		return "", err
	}
	return pin, nil
}

// Confirm asks a yes/no question on the terminal
func Confirm(question string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeBase()).Run()
	return ok, err
}

// SQLitePath returns the database file when the store is SQLite
func (c *Context) SQLitePath() (string, bool) {
	s, ok := c.Store.(*sqlite.Store)
	if !ok {
		return "", false
	}
	return s.Location(), true
}

// PerformAutomaticBackup creates a backup of a SQLite store and only logs failures
func (c *Context) PerformAutomaticBackup() {
	path, ok := c.SQLitePath()
	if !ok {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if _, err := backup.NewManager(path).CreateBackup(); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}
