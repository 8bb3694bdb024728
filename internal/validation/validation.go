// Package validation checks a kid's ledger for integrity violations.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
)

// ConflictType represents the type of integrity violation
type ConflictType string

const (
	ConflictBalanceMismatch     ConflictType = "balance_mismatch"
	ConflictNegativeBalance     ConflictType = "negative_balance"
	ConflictGivenTimestamp      ConflictType = "given_timestamp"
	ConflictCancelledTimestamp  ConflictType = "cancelled_timestamp"
	ConflictGivenBeforePurchase ConflictType = "given_before_purchase"
	ConflictUnknownStatus       ConflictType = "unknown_status"
	ConflictMissingSpend        ConflictType = "missing_spend"
	ConflictRefundMismatch      ConflictType = "refund_mismatch"
	ConflictDuplicateID         ConflictType = "duplicate_id"
	ConflictNegativePeanuts     ConflictType = "negative_peanuts"
)

// Conflict represents a detected integrity violation
type Conflict struct {
	Type        ConflictType
	Description string
	Items       []string // ids of the documents involved
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	KidID     string
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

func (vr *ValidationResult) add(t ConflictType, items []string, format string, args ...any) {
	vr.Conflicts = append(vr.Conflicts, Conflict{
		Type:        t,
		Description: fmt.Sprintf(format, args...),
		Items:       items,
	})
}

// Validator checks ledger snapshots
type Validator struct{}

// New creates a new Validator
func New() *Validator {
	return &Validator{}
}

// ValidateSnapshot checks every invariant of one kid's ledger
func (v *Validator) ValidateSnapshot(s ledger.Snapshot) ValidationResult {
	result := ValidationResult{KidID: s.Kid.ID, Conflicts: []Conflict{}}
	v.checkBalance(&result, s)
	v.checkPurchases(&result, s)
	v.checkDefinitions(&result, s)
	sort.SliceStable(result.Conflicts, func(i, j int) bool {
		return result.Conflicts[i].Type < result.Conflicts[j].Type
	})
	return result
}

func (v *Validator) checkBalance(result *ValidationResult, s ledger.Snapshot) {
	var sum int64
	seen := make(map[string]bool, len(s.Transactions))
	for _, tx := range s.Transactions {
		sum += tx.Amount
		if seen[tx.ID] {
			result.add(ConflictDuplicateID, []string{tx.ID}, "Transaction %s appears more than once", tx.ID)
		}
		seen[tx.ID] = true
	}
	if sum != s.Kid.Balance {
		result.add(ConflictBalanceMismatch, []string{s.Kid.ID},
			"Balance of %s is %d but transactions sum to %d", s.Kid.Name, s.Kid.Balance, sum)
	}
	if s.Kid.Balance < 0 {
		result.add(ConflictNegativeBalance, []string{s.Kid.ID}, "Balance of %s is negative (%d)", s.Kid.Name, s.Kid.Balance)
	}
}

func (v *Validator) checkPurchases(result *ValidationResult, s ledger.Snapshot) {
	spends := make(map[string]int64)
	refunds := make(map[string]int64)
	for _, tx := range s.Transactions {
		switch tx.Type {
		case models.TxSpendReward:
			spends[tx.PurchaseID] += tx.Amount
		case models.TxRefundReward:
			refunds[tx.PurchaseID] += tx.Amount
		}
	}

	for _, p := range s.Purchases {
		ids := []string{p.ID}
		switch p.Status {
		case models.StatusInBasket, models.StatusGiven, models.StatusCancelled:
		default:
			result.add(ConflictUnknownStatus, ids, "Purchase %q has unknown status %q", p.Title, p.Status)
		}

		if (p.Status == models.StatusGiven) != (p.GivenAt != nil) {
			result.add(ConflictGivenTimestamp, ids, "Purchase %q is %s but given_at is %s", p.Title, p.Status, presence(p.GivenAt != nil))
		}
		if p.GivenAt != nil && p.GivenAt.Before(p.PurchasedAt) {
			result.add(ConflictGivenBeforePurchase, ids, "Purchase %q was given before it was bought", p.Title)
		}
		if (p.Status == models.StatusCancelled) != (p.CancelledAt != nil) {
			result.add(ConflictCancelledTimestamp, ids, "Purchase %q is %s but cancelled_at is %s", p.Title, p.Status, presence(p.CancelledAt != nil))
		}

		if spends[p.ID] != -p.Cost {
			result.add(ConflictMissingSpend, ids, "Purchase %q cost %d but spend transactions total %d", p.Title, p.Cost, spends[p.ID])
		}
		wantRefund := int64(0)
		if p.Status == models.StatusCancelled {
			wantRefund = p.Cost
		}
		if refunds[p.ID] != wantRefund {
			result.add(ConflictRefundMismatch, ids, "Purchase %q is %s but refunds total %d", p.Title, p.Status, refunds[p.ID])
		}
	}
}

func (v *Validator) checkDefinitions(result *ValidationResult, s ledger.Snapshot) {
	groups := [][]models.Definition{s.Rules, s.Chores, s.Rewards}
	for _, defs := range groups {
		for _, d := range defs {
			if d.Peanuts < 0 {
				result.add(ConflictNegativePeanuts, []string{d.ID}, "%s %q has negative peanuts (%d)", d.Kind, d.Title, d.Peanuts)
			}
		}
	}
}

func presence(set bool) string {
	if set {
		return "set"
	}
	return "missing"
}
