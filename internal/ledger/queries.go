package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage"
)

// Snapshot is everything the ledger holds for one kid
type Snapshot struct {
	Kid          models.Kid
	Rules        []models.Definition
	Chores       []models.Definition
	Rewards      []models.Definition
	Purchases    []models.RewardPurchase
	Transactions []models.Transaction
}

func wrapRead(err error) error {
	if errors.Is(err, storage.ErrUnavailable) || errors.Is(err, storage.ErrNotLoaded) {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return err
}

func listDecoded[T any](ctx context.Context, store storage.Provider, collection string) ([]T, error) {
	snaps, err := store.List(ctx, collection)
	if err != nil {
		return nil, wrapRead(err)
	}
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		var v T
		if err := snap.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", snap.Path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Kid returns the profile document
func (l *Ledger) Kid(ctx context.Context) (models.Kid, error) {
	if !storage.ValidID(l.kidID) {
		return models.Kid{}, ErrProfileNotFound
	}
	snap, err := l.store.Read(ctx, l.kidPath())
	if errors.Is(err, storage.ErrNotFound) {
		return models.Kid{}, ErrProfileNotFound
	}
	if err != nil {
		return models.Kid{}, wrapRead(err)
	}
	return decodeKid(snap)
}

// CurrentBalance returns the cached running balance, 0 when it cannot be read
func (l *Ledger) CurrentBalance(ctx context.Context) int64 {
	kid, err := l.Kid(ctx)
	if err != nil {
		logger.Warn("Failed to read balance", "kid", l.kidID, "error", err)
		return 0
	}
	return kid.Balance
}

// BasketEntries yields the purchases waiting to be given. Each range over
// the sequence queries the store again; failures yield nothing.
func (l *Ledger) BasketEntries(ctx context.Context) iter.Seq[models.RewardPurchase] {
	return func(yield func(models.RewardPurchase) bool) {
		purchases, err := l.Purchases(ctx)
		if err != nil {
			logger.Warn("Failed to read basket", "kid", l.kidID, "error", err)
			return
		}
		for _, p := range purchases {
			if p.Status != models.StatusInBasket {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Definitions returns every card of a kind, active or not, ordered by title
func (l *Ledger) Definitions(ctx context.Context, kind models.DefinitionKind) ([]models.Definition, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	defs, err := listDecoded[models.Definition](ctx, l.store, models.KidCollection(l.accountID, l.kidID, models.CollectionFor(kind)))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Title != defs[j].Title {
			return defs[i].Title < defs[j].Title
		}
		return defs[i].ID < defs[j].ID
	})
	return defs, nil
}

// Definition returns one card regardless of its active flag
func (l *Ledger) Definition(ctx context.Context, kind models.DefinitionKind, id string) (models.Definition, error) {
	if !kind.Valid() {
		return models.Definition{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	snap, err := l.store.Read(ctx, l.definitionPath(kind, id))
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
		return models.Definition{}, fmt.Errorf("%w: %s %s", ErrDefinitionNotFound, kind, id)
	}
	if err != nil {
		return models.Definition{}, wrapRead(err)
	}
	var def models.Definition
	if err := snap.Decode(&def); err != nil {
		return models.Definition{}, err
	}
	return def, nil
}

func (l *Ledger) available(ctx context.Context, kind models.DefinitionKind) []models.Definition {
	defs, err := l.Definitions(ctx, kind)
	if err != nil {
		logger.Warn("Failed to read cards", "kid", l.kidID, "kind", kind, "error", err)
		return nil
	}
	active := defs[:0]
	for _, d := range defs {
		if d.Active {
			active = append(active, d)
		}
	}
	return active
}

// AvailableRules returns the active rules, empty when they cannot be read
func (l *Ledger) AvailableRules(ctx context.Context) []models.Definition {
	return l.available(ctx, models.KindRule)
}

// AvailableChores returns the active chores, empty when they cannot be read
func (l *Ledger) AvailableChores(ctx context.Context) []models.Definition {
	return l.available(ctx, models.KindChore)
}

// AvailableRewards returns the active rewards, empty when they cannot be read
func (l *Ledger) AvailableRewards(ctx context.Context) []models.Definition {
	return l.available(ctx, models.KindReward)
}

// Purchases returns every purchase, newest first
func (l *Ledger) Purchases(ctx context.Context) ([]models.RewardPurchase, error) {
	purchases, err := listDecoded[models.RewardPurchase](ctx, l.store, models.KidCollection(l.accountID, l.kidID, models.CollectionPurchases))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(purchases, func(i, j int) bool {
		return purchases[i].PurchasedAt.After(purchases[j].PurchasedAt)
	})
	return purchases, nil
}

// Purchase returns one purchase in any state
func (l *Ledger) Purchase(ctx context.Context, id string) (models.RewardPurchase, error) {
	snap, err := l.store.Read(ctx, l.purchasePath(id))
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
		return models.RewardPurchase{}, fmt.Errorf("%w: purchase %s not found", ErrInvalidStateTransition, id)
	}
	if err != nil {
		return models.RewardPurchase{}, wrapRead(err)
	}
	var p models.RewardPurchase
	if err := snap.Decode(&p); err != nil {
		return models.RewardPurchase{}, err
	}
	return p, nil
}

// Transactions returns the ledger history, oldest first
func (l *Ledger) Transactions(ctx context.Context) ([]models.Transaction, error) {
	txs, err := listDecoded[models.Transaction](ctx, l.store, models.KidCollection(l.accountID, l.kidID, models.CollectionTransactions))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
	return txs, nil
}

// Snapshot reads the kid and all its collections. The reads are not one
// atomic unit; integrity checks should run while the kid is idle.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.Kid, err = l.Kid(ctx); err != nil {
		return s, err
	}
	if s.Rules, err = l.Definitions(ctx, models.KindRule); err != nil {
		return s, err
	}
	if s.Chores, err = l.Definitions(ctx, models.KindChore); err != nil {
		return s, err
	}
	if s.Rewards, err = l.Definitions(ctx, models.KindReward); err != nil {
		return s, err
	}
	if s.Purchases, err = l.Purchases(ctx); err != nil {
		return s, err
	}
	if s.Transactions, err = l.Transactions(ctx); err != nil {
		return s, err
	}
	return s, nil
}
