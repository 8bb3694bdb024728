package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/storage/memory"
)

var (
	enterKey = tea.KeyMsg{Type: tea.KeyEnter}
	tabKey   = tea.KeyMsg{Type: tea.KeyTab}
	escKey   = tea.KeyMsg{Type: tea.KeyEsc}
)

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// setupLedger creates a kid with one rule worth 3 and a reward costing 2
func setupLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	store := memory.New(t.Name())
	if err := store.Init(ctx); err != nil {
		t.Fatal(err)
	}
	f := family.New(store, "home")
	if _, err := f.EnsureAccount(ctx, "Home"); err != nil {
		t.Fatal(err)
	}
	kid, err := f.CreateKid(ctx, "Noor")
	if err != nil {
		t.Fatal(err)
	}
	l := f.Ledger(kid.ID)
	if _, err := l.AddDefinition(ctx, models.KindRule, "Brush teeth", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AddDefinition(ctx, models.KindReward, "Sticker", 2); err != nil {
		t.Fatal(err)
	}
	return l
}

func press(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		if m, ok = next.(Model); !ok {
			t.Fatalf("Update returned %T", next)
		}
	}
	return m
}

// buyOne earns 3 peanuts, buys the sticker and opens the basket tab
func buyOne(t *testing.T, m Model) Model {
	t.Helper()
	m = press(t, m, enterKey, tabKey, enterKey, tabKey)
	if m.state != constants.StateBasket {
		t.Fatalf("state = %v, want basket", m.state)
	}
	if len(m.basket) != 1 || m.balance != 1 {
		t.Fatalf("basket = %v, balance = %d", m.basket, m.balance)
	}
	return m
}

func TestNewModel(t *testing.T) {
	m := NewModel(context.Background(), setupLedger(t), "Noor")

	if m.state != constants.StateCards {
		t.Errorf("state = %v, want cards", m.state)
	}
	if len(m.cards) != 1 || len(m.rewards) != 1 || len(m.basket) != 0 {
		t.Errorf("cards = %d, rewards = %d, basket = %d", len(m.cards), len(m.rewards), len(m.basket))
	}
	view := m.View()
	for _, want := range []string{"Cards", "Shop", "Basket", "Noor: 0", "Brush teeth"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestTabCycling(t *testing.T) {
	m := NewModel(context.Background(), setupLedger(t), "Noor")

	m = press(t, m, tabKey)
	if m.state != constants.StateShop {
		t.Errorf("after tab state = %v, want shop", m.state)
	}
	m = press(t, m, tabKey, tabKey)
	if m.state != constants.StateCards {
		t.Errorf("tab should wrap to cards, got %v", m.state)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.state != constants.StateBasket {
		t.Errorf("shift+tab should wrap to basket, got %v", m.state)
	}

	m = press(t, m, runeKey("q"))
	if !m.quitting || m.View() != "" {
		t.Error("q should quit")
	}
}

func TestEarnBuyGive(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)
	m := NewModel(ctx, l, "Noor")

	m = press(t, m, enterKey)
	if m.balance != 3 || m.status != "+3 peanuts for Brush teeth" {
		t.Fatalf("after completion balance = %d, status = %q", m.balance, m.status)
	}

	m = press(t, m, tabKey, enterKey, tabKey)
	if len(m.basket) != 1 || m.balance != 1 {
		t.Fatalf("after purchase basket = %v, balance = %d", m.basket, m.balance)
	}
	m = press(t, m, runeKey("g"))
	if len(m.basket) != 0 {
		t.Errorf("basket after give = %v", m.basket)
	}
	if m.status != "Sticker was given" {
		t.Errorf("status = %q", m.status)
	}
	purchases, err := l.Purchases(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(purchases) != 1 || purchases[0].Status != models.StatusGiven {
		t.Errorf("purchases = %+v", purchases)
	}
	if l.CurrentBalance(ctx) != 1 {
		t.Errorf("giving must not change the balance")
	}
}

func TestBuyWithoutBalance(t *testing.T) {
	m := NewModel(context.Background(), setupLedger(t), "Noor")

	m = press(t, m, tabKey, enterKey)
	if !m.statusIsError || !strings.Contains(m.status, ledger.ErrInsufficientBalance.Error()) {
		t.Errorf("status = %q, want insufficient balance", m.status)
	}
	if len(m.basket) != 0 {
		t.Error("nothing should be in the basket")
	}
}

func TestRemoveFromBasketConfirmed(t *testing.T) {
	m := buyOne(t, NewModel(context.Background(), setupLedger(t), "Noor"))

	m = press(t, m, runeKey("x"))
	if m.state != constants.StateConfirmRemove || m.form == nil || m.confirmation == nil {
		t.Fatalf("x should open the confirmation, state = %v", m.state)
	}

	m.confirmation.Confirmed = true
	m.form.State = huh.StateCompleted
	m = press(t, m, tea.KeyMsg{})

	if m.state != constants.StateBasket || m.form != nil {
		t.Errorf("form should close, state = %v", m.state)
	}
	if len(m.basket) != 0 || m.balance != 3 {
		t.Errorf("basket = %v, balance = %d, want empty and refunded", m.basket, m.balance)
	}
	if m.status != "Refunded 2 peanuts" {
		t.Errorf("status = %q", m.status)
	}
}

func TestRemoveFromBasketDeclined(t *testing.T) {
	m := buyOne(t, NewModel(context.Background(), setupLedger(t), "Noor"))

	m = press(t, m, runeKey("x"))
	m.form.State = huh.StateCompleted
	m = press(t, m, tea.KeyMsg{})
	if len(m.basket) != 1 || m.balance != 1 {
		t.Errorf("declined removal changed the basket: %v, balance %d", m.basket, m.balance)
	}

	m = press(t, m, runeKey("x"), escKey)
	if m.state != constants.StateBasket || len(m.basket) != 1 {
		t.Errorf("esc should cancel, state = %v, basket = %v", m.state, m.basket)
	}
}

func TestGiveRequiresPIN(t *testing.T) {
	errWrong := errors.New("wrong pin")
	check := func(_ context.Context, pin string) error {
		if pin != "1234" {
			return errWrong
		}
		return nil
	}
	m := buyOne(t, NewModel(context.Background(), setupLedger(t), "Noor", WithPINCheck(check)))

	m = press(t, m, runeKey("g"))
	if m.state != constants.StateEnterPIN || m.pinEntry == nil {
		t.Fatalf("g should ask for the PIN, state = %v", m.state)
	}
	m.pinEntry.PIN = "0000"
	m.form.State = huh.StateCompleted
	m = press(t, m, tea.KeyMsg{})
	if !m.statusIsError || len(m.basket) != 1 {
		t.Errorf("wrong PIN should refuse, status = %q, basket = %v", m.status, m.basket)
	}

	m = press(t, m, runeKey("g"))
	m.pinEntry.PIN = "1234"
	m.form.State = huh.StateCompleted
	m = press(t, m, tea.KeyMsg{})
	if m.statusIsError || len(m.basket) != 0 {
		t.Errorf("right PIN should give, status = %q, basket = %v", m.status, m.basket)
	}
}

func TestCursorStaysInRange(t *testing.T) {
	m := NewModel(context.Background(), setupLedger(t), "Noor")

	m = press(t, m, runeKey("j"), runeKey("j"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d with a single card", m.cursor)
	}
	m = press(t, m, runeKey("k"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d after moving up from the top", m.cursor)
	}

	m = press(t, m, tabKey, tabKey, runeKey("g"), runeKey("x"))
	if m.state != constants.StateBasket {
		t.Errorf("actions on an empty basket should be ignored, state = %v", m.state)
	}
}
