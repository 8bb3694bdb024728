package models

import "time"

// DefinitionKind identifies which card collection a definition lives in
type DefinitionKind string

const (
	KindRule   DefinitionKind = "rule"
	KindChore  DefinitionKind = "chore"
	KindReward DefinitionKind = "reward"
)

// Earns reports whether completing a definition of this kind earns peanuts
func (k DefinitionKind) Earns() bool {
	return k == KindRule || k == KindChore
}

// Valid reports whether k is a known kind
func (k DefinitionKind) Valid() bool {
	return k == KindRule || k == KindChore || k == KindReward
}

// ParseKind accepts singular and plural spellings
func ParseKind(s string) (DefinitionKind, bool) {
	switch s {
	case "rule", "rules":
		return KindRule, true
	case "chore", "chores":
		return KindChore, true
	case "reward", "rewards":
		return KindReward, true
	}
	return "", false
}

type PurchaseStatus string

const (
	StatusInBasket  PurchaseStatus = "IN_BASKET"
	StatusGiven     PurchaseStatus = "GIVEN"
	StatusCancelled PurchaseStatus = "CANCELLED"
)

type TransactionType string

const (
	TxEarnRule      TransactionType = "EARN_RULE"
	TxEarnChore     TransactionType = "EARN_CHORE"
	TxSpendReward   TransactionType = "SPEND_REWARD"
	TxRefundReward  TransactionType = "REFUND_REWARD"
	TxResetBalance  TransactionType = "RESET_BALANCE"
	TxAdjustBalance TransactionType = "ADJUST_BALANCE"
)

// Account is the guardian account that owns kid profiles
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PINHash   string    `json:"pin_hash,omitempty"`
	KidIDs    []string  `json:"kid_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPIN reports whether a guardian PIN has been configured
func (a Account) HasPIN() bool {
	return a.PINHash != ""
}

// Kid is a child profile. Balance is a cached running counter that is only
// mutated in the same atomic unit as the transaction it records.
type Kid struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// Definition is a rule, chore or reward card. For rules and chores Peanuts
// is the amount earned per completion; for rewards it is the cost.
type Definition struct {
	ID          string         `json:"id"`
	Kind        DefinitionKind `json:"kind"`
	Title       string         `json:"title"`
	Peanuts     int64          `json:"peanuts"`
	Active      bool           `json:"active"`
	Custom      bool           `json:"custom"`
	TemplateKey string         `json:"template_key,omitempty"`
	Completions []time.Time    `json:"completions,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RewardPurchase tracks a bought reward through the basket.
// GivenAt is set iff Status is GIVEN; CancelledAt iff Status is CANCELLED.
type RewardPurchase struct {
	ID          string         `json:"id"`
	RewardID    string         `json:"reward_id"`
	Title       string         `json:"title"`
	Cost        int64          `json:"cost"`
	Status      PurchaseStatus `json:"status"`
	PurchasedAt time.Time      `json:"purchased_at"`
	GivenAt     *time.Time     `json:"given_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
}

// Transaction is an append-only ledger entry. Amount is signed.
type Transaction struct {
	ID         string          `json:"id"`
	Type       TransactionType `json:"type"`
	RefID      string          `json:"ref_id,omitempty"`
	PurchaseID string          `json:"purchase_id,omitempty"`
	Amount     int64           `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
	Note       string          `json:"note,omitempty"`
}
