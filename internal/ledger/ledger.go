// Package ledger owns a kid's peanut balance, transaction log, cards and
// reward purchases. Every balance change is applied through one atomic unit
// of the storage provider together with the transaction that records it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage"
)

// Operation results reported to the Observer
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultConflict = "conflict_exhausted"
	ResultError    = "error"
)

// Observer receives instrumentation for mutating operations
type Observer interface {
	ObserveOperation(operation, result string, elapsed time.Duration)
	ObserveConflictRetry(operation string)
}

type Ledger struct {
	store       storage.Provider
	accountID   string
	kidID       string
	now         func() time.Time
	newID       func() string
	maxAttempts int
	backoff     time.Duration
	observer    Observer
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithMaxAttempts bounds the atomic unit retries. Values below two are raised
// so a conflict is always retried once with fresh data.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) { l.maxAttempts = n }
}

func WithRetryBackoff(d time.Duration) Option {
	return func(l *Ledger) { l.backoff = d }
}

func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// New returns the ledger of one kid profile
func New(store storage.Provider, accountID, kidID string, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		accountID:   accountID,
		kidID:       kidID,
		now:         time.Now,
		newID:       uuid.NewString,
		maxAttempts: constants.DefaultLedgerAttempts,
		backoff:     constants.DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxAttempts < constants.MinLedgerAttempts {
		l.maxAttempts = constants.MinLedgerAttempts
	}
	return l
}

func (l *Ledger) KidID() string {
	return l.kidID
}

func (l *Ledger) kidPath() string {
	return models.KidPath(l.accountID, l.kidID)
}

func (l *Ledger) definitionPath(kind models.DefinitionKind, id string) string {
	return models.DefinitionPath(l.accountID, l.kidID, kind, id)
}

func (l *Ledger) purchasePath(id string) string {
	return models.PurchasePath(l.accountID, l.kidID, id)
}

func (l *Ledger) transactionPath(id string) string {
	return models.TransactionPath(l.accountID, l.kidID, id)
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC()
}

// run applies mutate as one atomic unit, retrying with fresh reads when a
// concurrent writer changed any of readPaths
func (l *Ledger) run(ctx context.Context, op string, readPaths []string, mutate storage.MutateFunc) error {
	start := time.Now()
	var err error
	if storage.ValidID(l.kidID) {
		err = l.attempt(ctx, op, readPaths, mutate)
	} else {
		err = fmt.Errorf("%w: %q", ErrProfileNotFound, l.kidID)
	}
	if l.observer != nil {
		l.observer.ObserveOperation(op, resultOf(err), time.Since(start))
	}
	switch {
	case err == nil:
		logger.Debug("Ledger operation applied", "op", op, "kid", l.kidID)
	case IsRejection(err):
		logger.Debug("Ledger operation rejected", "op", op, "kid", l.kidID, "reason", err)
	default:
		logger.Error("Ledger operation failed", "op", op, "kid", l.kidID, "error", err)
	}
	return err
}

func (l *Ledger) attempt(ctx context.Context, op string, readPaths []string, mutate storage.MutateFunc) error {
	for attempt := 1; ; attempt++ {
		err := l.store.RunAtomic(ctx, readPaths, mutate)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, storage.ErrConflict):
			if attempt >= l.maxAttempts {
				return fmt.Errorf("%w: %s gave up after %d attempts", ErrConflictRetryExhausted, op, attempt)
			}
			logger.Warn("Ledger conflict, retrying with fresh data", "op", op, "kid", l.kidID, "attempt", attempt)
			if l.observer != nil {
				l.observer.ObserveConflictRetry(op)
			}
			if err := sleep(ctx, l.retryDelay(attempt)); err != nil {
				return err
			}
		case errors.Is(err, storage.ErrUnavailable), errors.Is(err, storage.ErrNotLoaded):
			return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		default:
			return err
		}
	}
}

func (l *Ledger) retryDelay(attempt int) time.Duration {
	if l.backoff <= 0 {
		return 0
	}
	return time.Duration(attempt)*l.backoff + rand.N(l.backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case IsRejection(err):
		return ResultRejected
	case errors.Is(err, ErrConflictRetryExhausted):
		return ResultConflict
	default:
		return ResultError
	}
}

func decodeKid(snap storage.Snapshot) (models.Kid, error) {
	if !snap.Exists {
		return models.Kid{}, ErrProfileNotFound
	}
	var kid models.Kid
	if err := snap.Decode(&kid); err != nil {
		return models.Kid{}, err
	}
	return kid, nil
}

// decodeActiveDefinition resolves a card that can be completed or bought
func decodeActiveDefinition(snap storage.Snapshot, kind models.DefinitionKind) (models.Definition, error) {
	if !snap.Exists {
		return models.Definition{}, fmt.Errorf("%w: %s %s", ErrDefinitionNotFound, kind, snap.ID)
	}
	var def models.Definition
	if err := snap.Decode(&def); err != nil {
		return models.Definition{}, err
	}
	if !def.Active {
		return models.Definition{}, fmt.Errorf("%w: %s %s is inactive", ErrDefinitionNotFound, kind, snap.ID)
	}
	return def, nil
}

// addBalance applies delta to a non-negative balance, refusing results that
// do not fit an int64
func addBalance(balance, delta int64) (int64, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, fmt.Errorf("%w: adding %d to %d overflows the balance", ErrInvalidAmount, delta, balance)
	}
	if delta < 0 && balance < math.MinInt64-delta {
		return 0, fmt.Errorf("%w: subtracting %d from %d overflows the balance", ErrInvalidAmount, delta, balance)
	}
	return balance + delta, nil
}

func balanceWrite(kidPath string, balance int64) storage.Write {
	return storage.Merge(kidPath, storage.Fields{"balance": balance})
}
