// Package family manages the guardian account, its PIN and the kid
// profiles that own a ledger each.
package family

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrProfileLimit    = errors.New("kid profile limit reached")
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidPIN      = errors.New("PIN must be 4 to 6 digits")
	ErrWrongPIN        = errors.New("wrong PIN")
	ErrPINNotSet       = errors.New("PIN has not been set")
)

type Family struct {
	store      storage.Provider
	accountID  string
	maxKids    int
	now        func() time.Time
	newID      func() string
	ledgerOpts []ledger.Option
}

type Option func(*Family)

// WithMaxKids lowers the profile cap. It can never exceed constants.MaxKids.
func WithMaxKids(n int) Option {
	return func(f *Family) { f.maxKids = n }
}

func WithClock(now func() time.Time) Option {
	return func(f *Family) { f.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(f *Family) { f.newID = newID }
}

// WithLedgerOptions are applied to every ledger returned by Ledger
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(f *Family) { f.ledgerOpts = append(f.ledgerOpts, opts...) }
}

func New(store storage.Provider, accountID string, opts ...Option) *Family {
	f := &Family{
		store:     store,
		accountID: accountID,
		maxKids:   constants.MaxKids,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxKids <= 0 || f.maxKids > constants.MaxKids {
		f.maxKids = constants.MaxKids
	}
	return f
}

func (f *Family) AccountID() string {
	return f.accountID
}

func (f *Family) MaxKids() int {
	return f.maxKids
}

func (f *Family) accountPath() string {
	return models.AccountPath(f.accountID)
}

func decodeAccount(snap storage.Snapshot) (models.Account, error) {
	if !snap.Exists {
		return models.Account{}, ErrAccountNotFound
	}
	var acct models.Account
	if err := snap.Decode(&acct); err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

func wrapStorage(err error) error {
	if errors.Is(err, storage.ErrUnavailable) || errors.Is(err, storage.ErrNotLoaded) {
		return fmt.Errorf("%w: %v", ledger.ErrPersistenceUnavailable, err)
	}
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: %v", ledger.ErrConflictRetryExhausted, err)
	}
	return err
}

// update runs an atomic unit over the account document, retrying on conflict
func (f *Family) update(ctx context.Context, readPaths []string, mutate storage.MutateFunc) error {
	var err error
	for attempt := 1; attempt <= constants.DefaultLedgerAttempts; attempt++ {
		err = f.store.RunAtomic(ctx, readPaths, mutate)
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
		logger.Warn("Account conflict, retrying", "account", f.accountID, "attempt", attempt)
	}
	return wrapStorage(err)
}

// EnsureAccount creates the guardian account if it does not exist yet. It
// is the local stand-in for signing in.
func (f *Family) EnsureAccount(ctx context.Context, name string) (models.Account, error) {
	name = strings.TrimSpace(name)
	p := f.accountPath()

	var acct models.Account
	err := f.update(ctx, []string{p}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		existing, err := decodeAccount(reads[p])
		if err == nil {
			acct = existing
			return nil, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		if name == "" {
			return nil, ErrInvalidName
		}
		acct = models.Account{ID: f.accountID, Name: name, KidIDs: []string{}, CreatedAt: f.now().UTC()}
		doc, err := storage.Encode(acct)
		if err != nil {
			return nil, err
		}
		return []storage.Write{storage.Set(p, doc)}, nil
	})
	if err != nil {
		return models.Account{}, err
	}
	logger.Debug("Account ready", "account", acct.ID)
	return acct, nil
}

func (f *Family) Account(ctx context.Context) (models.Account, error) {
	snap, err := f.store.Read(ctx, f.accountPath())
	if errors.Is(err, storage.ErrNotFound) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, wrapStorage(err)
	}
	return decodeAccount(snap)
}

// ValidatePIN checks the PIN format without touching storage
func ValidatePIN(pin string) error {
	if len(pin) < constants.MinPINLength || len(pin) > constants.MaxPINLength {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return ErrInvalidPIN
		}
	}
	return nil
}

// SetPIN stores a bcrypt hash of the guardian PIN
func (f *Family) SetPIN(ctx context.Context, pin string) error {
	if err := ValidatePIN(pin); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	p := f.accountPath()
	return f.update(ctx, []string{p}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		if _, err := decodeAccount(reads[p]); err != nil {
			return nil, err
		}
		return []storage.Write{storage.Merge(p, storage.Fields{"pin_hash": string(hash)})}, nil
	})
}

// VerifyPIN returns nil when pin matches the stored hash
func (f *Family) VerifyPIN(ctx context.Context, pin string) error {
	acct, err := f.Account(ctx)
	if err != nil {
		return err
	}
	if !acct.HasPIN() {
		return ErrPINNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PINHash), []byte(pin)); err != nil {
		return ErrWrongPIN
	}
	return nil
}

// CreateKid adds a kid profile. The cap is checked against the account's
// kid list inside the same atomic unit that extends it.
func (f *Family) CreateKid(ctx context.Context, name string) (models.Kid, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Kid{}, ErrInvalidName
	}
	acctPath := f.accountPath()
	kid := models.Kid{ID: f.newID(), Name: name}
	kidPath := models.KidPath(f.accountID, kid.ID)

	err := f.update(ctx, []string{acctPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		acct, err := decodeAccount(reads[acctPath])
		if err != nil {
			return nil, err
		}
		if len(acct.KidIDs) >= f.maxKids {
			return nil, fmt.Errorf("%w: at most %d profiles", ErrProfileLimit, f.maxKids)
		}
		kid.CreatedAt = f.now().UTC()
		doc, err := storage.Encode(kid)
		if err != nil {
			return nil, err
		}
		return []storage.Write{
			storage.Set(kidPath, doc),
			storage.Merge(acctPath, storage.Fields{"kid_ids": append(slices.Clone(acct.KidIDs), kid.ID)}),
		}, nil
	})
	if err != nil {
		return models.Kid{}, err
	}
	logger.Info("Kid profile created", "kid", kid.ID, "name", kid.Name)
	return kid, nil
}

// Kids returns the profiles in the order they were created
func (f *Family) Kids(ctx context.Context) ([]models.Kid, error) {
	acct, err := f.Account(ctx)
	if err != nil {
		return nil, err
	}
	kids := make([]models.Kid, 0, len(acct.KidIDs))
	for _, id := range acct.KidIDs {
		kid, err := f.Ledger(id).Kid(ctx)
		if errors.Is(err, ledger.ErrProfileNotFound) {
			logger.Warn("Account lists a missing kid profile", "kid", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		kids = append(kids, kid)
	}
	return kids, nil
}

// Kid returns a profile listed on the account. Ids the account does not
// list are not found, whatever the store holds at their path.
func (f *Family) Kid(ctx context.Context, id string) (models.Kid, error) {
	acct, err := f.Account(ctx)
	if err != nil {
		return models.Kid{}, err
	}
	if !storage.ValidID(id) || !slices.Contains(acct.KidIDs, id) {
		return models.Kid{}, fmt.Errorf("%w: %s", ledger.ErrProfileNotFound, id)
	}
	return f.Ledger(id).Kid(ctx)
}

// FindKid resolves a profile by id or case-insensitive name
func (f *Family) FindKid(ctx context.Context, idOrName string) (models.Kid, error) {
	kids, err := f.Kids(ctx)
	if err != nil {
		return models.Kid{}, err
	}
	for _, k := range kids {
		if k.ID == idOrName {
			return k, nil
		}
	}
	for _, k := range kids {
		if strings.EqualFold(k.Name, idOrName) {
			return k, nil
		}
	}
	return models.Kid{}, fmt.Errorf("%w: %s", ledger.ErrProfileNotFound, idOrName)
}

// DeleteKid removes a profile and everything nested under it
func (f *Family) DeleteKid(ctx context.Context, id string) error {
	if _, err := f.Kid(ctx, id); err != nil {
		return err
	}
	var paths []string
	for _, collection := range models.KidSubcollections {
		snaps, err := f.store.List(ctx, models.KidCollection(f.accountID, id, collection))
		if err != nil {
			return wrapStorage(err)
		}
		for _, s := range snaps {
			paths = append(paths, s.Path)
		}
	}
	paths = append(paths, models.KidPath(f.accountID, id))
	if err := f.store.BatchDelete(ctx, paths); err != nil {
		return wrapStorage(err)
	}

	acctPath := f.accountPath()
	err := f.update(ctx, []string{acctPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		acct, err := decodeAccount(reads[acctPath])
		if err != nil {
			return nil, err
		}
		remaining := slices.DeleteFunc(slices.Clone(acct.KidIDs), func(k string) bool { return k == id })
		return []storage.Write{storage.Merge(acctPath, storage.Fields{"kid_ids": remaining})}, nil
	})
	if err != nil {
		return err
	}
	logger.Info("Kid profile deleted", "kid", id, "documents", len(paths))
	return nil
}

// Ledger returns the ledger of one kid
func (f *Family) Ledger(kidID string) *ledger.Ledger {
	return ledger.New(f.store, f.accountID, kidID, f.ledgerOpts...)
}
