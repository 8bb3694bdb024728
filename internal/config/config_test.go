package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/tipje/internal/constants"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ledger.MaxAttempts != constants.DefaultLedgerAttempts {
		t.Errorf("MaxAttempts = %d", cfg.Ledger.MaxAttempts)
	}
	if cfg.Account != constants.DefaultAccountID {
		t.Errorf("Account = %q", cfg.Account)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty for defaults", cfg.Path)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvStorage, "")
	path := writeConfig(t, `
storage = "/tmp/tipje.db"
account = "family"

[ledger]
max_attempts = 5
retry_backoff = "100ms"

[server]
addr = ":9000"
metrics = false

[catalog]
file = "/etc/tipje/catalog.toml"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage != "/tmp/tipje.db" || cfg.Account != "family" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Ledger.MaxAttempts != 5 || cfg.Ledger.RetryBackoff != 100*time.Millisecond {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.Metrics {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Catalog.File != "/etc/tipje/catalog.toml" {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Dir() != filepath.Dir(path) {
		t.Errorf("Dir() = %q", cfg.Dir())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "storage = \"x.db\"\nstorag = \"typo\"\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "storag") {
		t.Errorf("Load() error = %v, want unknown key error", err)
	}
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	path := writeConfig(t, "storage = ")
	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on malformed TOML")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		in    Config
		check func(t *testing.T, c Config)
	}{
		{
			name: "attempts clamped to one retry",
			in:   Config{Ledger: LedgerConfig{MaxAttempts: 1}},
			check: func(t *testing.T, c Config) {
				if c.Ledger.MaxAttempts != constants.MinLedgerAttempts {
					t.Errorf("MaxAttempts = %d", c.Ledger.MaxAttempts)
				}
			},
		},
		{
			name: "kid cap cannot be raised",
			in:   Config{Family: FamilyConfig{MaxKids: 5}},
			check: func(t *testing.T, c Config) {
				if c.Family.MaxKids != constants.MaxKids {
					t.Errorf("MaxKids = %d", c.Family.MaxKids)
				}
			},
		},
		{
			name: "kid cap can be lowered",
			in:   Config{Family: FamilyConfig{MaxKids: 1}},
			check: func(t *testing.T, c Config) {
				if c.Family.MaxKids != 1 {
					t.Errorf("MaxKids = %d", c.Family.MaxKids)
				}
			},
		},
		{
			name: "blank fields filled",
			in:   Config{},
			check: func(t *testing.T, c Config) {
				if c.Storage == "" || c.Account == "" || c.Server.Addr == "" {
					t.Errorf("blank fields remain: %+v", c)
				}
			},
		},
		{
			name: "negative backoff",
			in:   Config{Ledger: LedgerConfig{RetryBackoff: -time.Second}},
			check: func(t *testing.T, c Config) {
				if c.Ledger.RetryBackoff != 0 {
					t.Errorf("RetryBackoff = %v", c.Ledger.RetryBackoff)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.in
			c.Normalize()
			tt.check(t, c)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvStorage: "memory://test",
		EnvDebug:   "true",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.Storage != "memory://test" || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg = Default()
	cfg.ApplyEnv(func(k string) string {
		if k == EnvDebug {
			return "not-a-bool"
		}
		return ""
	})
	if cfg.Debug {
		t.Error("invalid TIPJE_DEBUG should be ignored")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	want := Default()
	want.Storage = "/data/tipje.db"
	want.Ledger.MaxAttempts = 4

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	t.Setenv(EnvStorage, "")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Storage != want.Storage || got.Ledger.MaxAttempts != 4 || got.Ledger.RetryBackoff != want.Ledger.RetryBackoff {
		t.Errorf("round trip = %+v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x/y.db"); got != filepath.Join(home, "x/y.db") {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got := ExpandPath("postgres://u@h/db"); got != "postgres://u@h/db" {
		t.Errorf("ExpandPath() = %q", got)
	}
}
