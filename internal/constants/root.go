package constants

import "time"

// SessionState represents the active tab of the TUI dashboard
type SessionState int

const (
	AppName            = "tipje"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/tipje"
	DefaultStoragePath = "~/.config/tipje/tipje.db"
	DefaultConfigFile  = "~/.config/tipje/config.toml"
	DefaultAccountID   = "local"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimestampFormat is used when printing ledger history
	TimestampFormat = "2006-01-02 15:04"

	// Family limits
	MaxKids      = 2
	MinPINLength = 4
	MaxPINLength = 6

	// MaxPeanuts bounds a card value and a single guardian adjustment
	MaxPeanuts = 1_000_000

	// Ledger retry policy. MinLedgerAttempts guarantees one retry with fresh data.
	DefaultLedgerAttempts = 3
	MinLedgerAttempts     = 2
	DefaultRetryBackoff   = 25 * time.Millisecond

	// HTTP server
	DefaultServerAddr = "127.0.0.1:8080"
	PINHeader         = "X-Tipje-PIN"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "tipje-"
	BackupFileSuffix = ".db"

	// Lockfile for the JSON storage adapter. MalformedLockGrace covers the
	// window between creating a lockfile and writing its owner; it stays
	// below the LockRetries budget.
	LockfileSuffix     = ".lock"
	LockRetries        = 50
	LockRetryDelay     = 20 * time.Millisecond
	StaleLockMaxAge    = 2 * time.Minute
	MalformedLockGrace = 500 * time.Millisecond

	RedisKeyPrefix    = "tipje"
	PostgresSchema    = "tipje"
	SQLiteBusyTimeout = 5000 // milliseconds
)

// Session States
const (
	StateCards SessionState = iota
	StateShop
	StateBasket
	StateConfirmRemove
	StateEnterPIN
)
