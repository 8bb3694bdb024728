package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage"
)

// RecordCompletion logs one completion of an active rule or chore and credits
// its peanuts. Every call appends; frequency limits are left to the guardian.
func (l *Ledger) RecordCompletion(ctx context.Context, definitionID string, kind models.DefinitionKind) (models.Transaction, error) {
	if !kind.Earns() {
		return models.Transaction{}, fmt.Errorf("%w: only rules and chores can be completed, got %q", ErrInvalidKind, kind)
	}
	if !storage.ValidID(definitionID) {
		return models.Transaction{}, fmt.Errorf("%w: %s %q", ErrDefinitionNotFound, kind, definitionID)
	}
	kidPath := l.kidPath()
	defPath := l.definitionPath(kind, definitionID)
	txID := l.newID()
	txType := models.TxEarnRule
	if kind == models.KindChore {
		txType = models.TxEarnChore
	}

	var recorded models.Transaction
	err := l.run(ctx, "record_completion", []string{kidPath, defPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		kid, err := decodeKid(reads[kidPath])
		if err != nil {
			return nil, err
		}
		def, err := decodeActiveDefinition(reads[defPath], kind)
		if err != nil {
			return nil, err
		}

		balance, err := addBalance(kid.Balance, def.Peanuts)
		if err != nil {
			return nil, err
		}

		now := l.timestamp()
		tx := models.Transaction{
			ID:        txID,
			Type:      txType,
			RefID:     def.ID,
			Amount:    def.Peanuts,
			Timestamp: now,
			Note:      def.Title,
		}
		txDoc, err := storage.Encode(tx)
		if err != nil {
			return nil, err
		}
		completions, err := storage.Encode(struct {
			Completions []time.Time `json:"completions"`
		}{append(def.Completions, now)})
		if err != nil {
			return nil, err
		}

		recorded = tx
		return []storage.Write{
			balanceWrite(kidPath, balance),
			storage.Merge(defPath, completions),
			storage.Set(l.transactionPath(tx.ID), txDoc),
		}, nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return recorded, nil
}

// PurchaseReward debits the reward cost and puts the reward in the basket.
// The balance check, the debit, the transaction and the purchase are one unit.
func (l *Ledger) PurchaseReward(ctx context.Context, rewardID string) (models.RewardPurchase, error) {
	if !storage.ValidID(rewardID) {
		return models.RewardPurchase{}, fmt.Errorf("%w: %s %q", ErrDefinitionNotFound, models.KindReward, rewardID)
	}
	kidPath := l.kidPath()
	rewardPath := l.definitionPath(models.KindReward, rewardID)
	txID := l.newID()
	purchaseID := l.newID()

	var bought models.RewardPurchase
	err := l.run(ctx, "purchase_reward", []string{kidPath, rewardPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		kid, err := decodeKid(reads[kidPath])
		if err != nil {
			return nil, err
		}
		reward, err := decodeActiveDefinition(reads[rewardPath], models.KindReward)
		if err != nil {
			return nil, err
		}
		if kid.Balance < reward.Peanuts {
			return nil, fmt.Errorf("%w: %q costs %d, balance is %d", ErrInsufficientBalance, reward.Title, reward.Peanuts, kid.Balance)
		}

		now := l.timestamp()
		purchase := models.RewardPurchase{
			ID:          purchaseID,
			RewardID:    reward.ID,
			Title:       reward.Title,
			Cost:        reward.Peanuts,
			Status:      models.StatusInBasket,
			PurchasedAt: now,
		}
		tx := models.Transaction{
			ID:         txID,
			Type:       models.TxSpendReward,
			RefID:      reward.ID,
			PurchaseID: purchase.ID,
			Amount:     -reward.Peanuts,
			Timestamp:  now,
			Note:       reward.Title,
		}
		purchaseDoc, err := storage.Encode(purchase)
		if err != nil {
			return nil, err
		}
		txDoc, err := storage.Encode(tx)
		if err != nil {
			return nil, err
		}
		// Rewards log purchases the way rules and chores log completions
		history, err := storage.Encode(struct {
			Completions []time.Time `json:"completions"`
		}{append(reward.Completions, now)})
		if err != nil {
			return nil, err
		}

		bought = purchase
		return []storage.Write{
			balanceWrite(kidPath, kid.Balance-reward.Peanuts),
			storage.Set(l.transactionPath(tx.ID), txDoc),
			storage.Set(l.purchasePath(purchase.ID), purchaseDoc),
			storage.Merge(rewardPath, history),
		}, nil
	})
	if err != nil {
		return models.RewardPurchase{}, err
	}
	return bought, nil
}

func decodeBasketPurchase(snap storage.Snapshot) (models.RewardPurchase, error) {
	if !snap.Exists {
		return models.RewardPurchase{}, fmt.Errorf("%w: purchase %s not found", ErrInvalidStateTransition, snap.ID)
	}
	var p models.RewardPurchase
	if err := snap.Decode(&p); err != nil {
		return models.RewardPurchase{}, err
	}
	if p.Status != models.StatusInBasket {
		return models.RewardPurchase{}, fmt.Errorf("%w: purchase %s is %s, not %s", ErrInvalidStateTransition, p.ID, p.Status, models.StatusInBasket)
	}
	return p, nil
}

// ConfirmGiven records that a basket reward was handed over. Balance and
// transactions are untouched; the money left at purchase time.
func (l *Ledger) ConfirmGiven(ctx context.Context, purchaseID string) (models.RewardPurchase, error) {
	if !storage.ValidID(purchaseID) {
		return models.RewardPurchase{}, fmt.Errorf("%w: purchase %q not found", ErrInvalidStateTransition, purchaseID)
	}
	purchasePath := l.purchasePath(purchaseID)

	var given models.RewardPurchase
	err := l.run(ctx, "confirm_given", []string{purchasePath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		p, err := decodeBasketPurchase(reads[purchasePath])
		if err != nil {
			return nil, err
		}
		givenAt := l.timestamp()
		if givenAt.Before(p.PurchasedAt) {
			givenAt = p.PurchasedAt
		}
		p.Status = models.StatusGiven
		p.GivenAt = &givenAt

		given = p
		return []storage.Write{
			storage.Merge(purchasePath, storage.MustEncode(struct {
				Status  models.PurchaseStatus `json:"status"`
				GivenAt time.Time             `json:"given_at"`
			}{p.Status, givenAt})),
		}, nil
	})
	if err != nil {
		return models.RewardPurchase{}, err
	}
	return given, nil
}

// RemoveFromBasket cancels a basket purchase and refunds its cost with a
// compensating transaction
func (l *Ledger) RemoveFromBasket(ctx context.Context, purchaseID string) (models.Transaction, error) {
	if !storage.ValidID(purchaseID) {
		return models.Transaction{}, fmt.Errorf("%w: purchase %q not found", ErrInvalidStateTransition, purchaseID)
	}
	kidPath := l.kidPath()
	purchasePath := l.purchasePath(purchaseID)
	txID := l.newID()

	var refund models.Transaction
	err := l.run(ctx, "remove_from_basket", []string{kidPath, purchasePath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		kid, err := decodeKid(reads[kidPath])
		if err != nil {
			return nil, err
		}
		p, err := decodeBasketPurchase(reads[purchasePath])
		if err != nil {
			return nil, err
		}
		balance, err := addBalance(kid.Balance, p.Cost)
		if err != nil {
			return nil, err
		}

		now := l.timestamp()
		tx := models.Transaction{
			ID:         txID,
			Type:       models.TxRefundReward,
			RefID:      p.RewardID,
			PurchaseID: p.ID,
			Amount:     p.Cost,
			Timestamp:  now,
			Note:       p.Title,
		}
		txDoc, err := storage.Encode(tx)
		if err != nil {
			return nil, err
		}

		refund = tx
		return []storage.Write{
			balanceWrite(kidPath, balance),
			storage.Set(l.transactionPath(tx.ID), txDoc),
			storage.Merge(purchasePath, storage.MustEncode(struct {
				Status      models.PurchaseStatus `json:"status"`
				CancelledAt time.Time             `json:"cancelled_at"`
			}{models.StatusCancelled, now})),
		}, nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return refund, nil
}

// ResetBalance zeroes the balance with a RESET_BALANCE transaction. A zero
// balance is left alone and an empty transaction is returned.
func (l *Ledger) ResetBalance(ctx context.Context, note string) (models.Transaction, error) {
	kidPath := l.kidPath()
	txID := l.newID()

	var reset models.Transaction
	err := l.run(ctx, "reset_balance", []string{kidPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		kid, err := decodeKid(reads[kidPath])
		if err != nil {
			return nil, err
		}
		reset = models.Transaction{}
		if kid.Balance == 0 {
			return nil, nil
		}
		tx := models.Transaction{
			ID:        txID,
			Type:      models.TxResetBalance,
			Amount:    -kid.Balance,
			Timestamp: l.timestamp(),
			Note:      note,
		}
		txDoc, err := storage.Encode(tx)
		if err != nil {
			return nil, err
		}
		reset = tx
		return []storage.Write{
			balanceWrite(kidPath, 0),
			storage.Set(l.transactionPath(tx.ID), txDoc),
		}, nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return reset, nil
}

// AdjustBalance applies a guardian correction. The balance may not go negative.
func (l *Ledger) AdjustBalance(ctx context.Context, amount int64, note string) (models.Transaction, error) {
	if amount == 0 {
		return models.Transaction{}, fmt.Errorf("%w: adjustment must not be zero", ErrInvalidAmount)
	}
	if amount > constants.MaxPeanuts || amount < -constants.MaxPeanuts {
		return models.Transaction{}, fmt.Errorf("%w: adjustment must be within %d peanuts", ErrInvalidAmount, constants.MaxPeanuts)
	}
	kidPath := l.kidPath()
	txID := l.newID()

	var adjusted models.Transaction
	err := l.run(ctx, "adjust_balance", []string{kidPath}, func(reads map[string]storage.Snapshot) ([]storage.Write, error) {
		kid, err := decodeKid(reads[kidPath])
		if err != nil {
			return nil, err
		}
		balance, err := addBalance(kid.Balance, amount)
		if err != nil {
			return nil, err
		}
		if balance < 0 {
			return nil, fmt.Errorf("%w: cannot subtract %d from %d", ErrInsufficientBalance, -amount, kid.Balance)
		}
		tx := models.Transaction{
			ID:        txID,
			Type:      models.TxAdjustBalance,
			Amount:    amount,
			Timestamp: l.timestamp(),
			Note:      note,
		}
		txDoc, err := storage.Encode(tx)
		if err != nil {
			return nil, err
		}
		adjusted = tx
		return []storage.Write{
			balanceWrite(kidPath, balance),
			storage.Set(l.transactionPath(tx.ID), txDoc),
		}, nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return adjusted, nil
}
