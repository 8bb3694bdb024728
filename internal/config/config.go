// Package config loads tipje settings from a TOML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/julianstephens/tipje/internal/constants"
)

// Environment variables that override file settings
const (
	EnvStorage      = "TIPJE_STORAGE"
	EnvDBConnection = "TIPJE_DB_CONNECTION"
	EnvDebug        = "TIPJE_DEBUG"
)

type LedgerConfig struct {
	MaxAttempts  int           `toml:"max_attempts"`
	RetryBackoff time.Duration `toml:"retry_backoff"`
}

type FamilyConfig struct {
	MaxKids int `toml:"max_kids"`
}

type ServerConfig struct {
	Addr    string `toml:"addr"`
	Metrics bool   `toml:"metrics"`
}

type CatalogConfig struct {
	File string `toml:"file"`
}

type Config struct {
	// Storage is a SQLite path, a .json file, memory://name, redis://... or
	// postgres://... (without password).
	Storage string        `toml:"storage"`
	Account string        `toml:"account"`
	Debug   bool          `toml:"debug"`
	Ledger  LedgerConfig  `toml:"ledger"`
	Family  FamilyConfig  `toml:"family"`
	Server  ServerConfig  `toml:"server"`
	Catalog CatalogConfig `toml:"catalog"`

	// Path is the file the config was read from, empty when defaults were used
	Path string `toml:"-"`
}

func Default() Config {
	return Config{
		Storage: constants.DefaultStoragePath,
		Account: constants.DefaultAccountID,
		Ledger: LedgerConfig{
			MaxAttempts:  constants.DefaultLedgerAttempts,
			RetryBackoff: constants.DefaultRetryBackoff,
		},
		Family: FamilyConfig{MaxKids: constants.MaxKids},
		Server: ServerConfig{Addr: constants.DefaultServerAddr, Metrics: true},
	}
}

// Load reads the config file at path. A missing file yields the defaults.
// Environment overrides are applied and values normalized.
func Load(path string) (Config, error) {
	cfg := Default()
	path = ExpandPath(path)

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, 0, len(undecoded))
				for _, k := range undecoded {
					keys = append(keys, k.String())
				}
				sort.Strings(keys)
				return Config{}, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
			}
			cfg.Path = path
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvStorage); v != "" {
		c.Storage = v
	}
	if v := getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// Normalize fills blanks with defaults and clamps limits
func (c *Config) Normalize() {
	def := Default()
	if strings.TrimSpace(c.Storage) == "" {
		c.Storage = def.Storage
	}
	if strings.TrimSpace(c.Account) == "" {
		c.Account = def.Account
	}
	if c.Ledger.MaxAttempts < constants.MinLedgerAttempts {
		c.Ledger.MaxAttempts = constants.MinLedgerAttempts
	}
	if c.Ledger.RetryBackoff < 0 {
		c.Ledger.RetryBackoff = 0
	}
	if c.Family.MaxKids <= 0 || c.Family.MaxKids > constants.MaxKids {
		c.Family.MaxKids = constants.MaxKids
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	c.Catalog.File = ExpandPath(c.Catalog.File)
}

// Save writes the config as TOML, creating parent directories
func Save(path string, cfg Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Dir is the directory holding the config file, used for logs and backups
func (c Config) Dir() string {
	if c.Path != "" {
		return filepath.Dir(c.Path)
	}
	return ExpandPath(constants.DefaultConfigDir)
}
