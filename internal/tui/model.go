package tui

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/models"
	"github.com/julianstephens/tipje/internal/validation"
)

// PINCheck verifies the guardian PIN before a guarded action
type PINCheck func(ctx context.Context, pin string) error

type Option func(*Model)

// WithPINCheck asks for the guardian PIN before a reward is marked given
func WithPINCheck(check PINCheck) Option {
	return func(m *Model) { m.pinCheck = check }
}

// ConfirmationFormModel holds the answer of a yes/no form
type ConfirmationFormModel struct {
	Message   string
	Confirmed bool
}

// PINFormModel holds the PIN typed into the PIN form
type PINFormModel struct {
	PIN string
}

type Model struct {
	ctx      context.Context
	ledger   *ledger.Ledger
	kidName  string
	pinCheck PINCheck

	state  constants.SessionState
	keys   KeyMap
	help   help.Model
	form   *huh.Form
	cursor int

	cards   []models.Definition
	rewards []models.Definition
	basket  []models.RewardPurchase
	balance int64

	confirmation    *ConfirmationFormModel
	pinEntry        *PINFormModel
	pendingRemoveID string
	pendingGiveID   string

	status            string
	statusIsError     bool
	validationWarning string

	quitting bool
	width    int
	height   int
}

func NewModel(ctx context.Context, l *ledger.Ledger, kidName string, opts ...Option) Model {
	m := Model{
		ctx:     ctx,
		ledger:  l,
		kidName: kidName,
		state:   constants.StateCards,
		keys:    DefaultKeyMap(),
		help:    help.New(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.refresh()
	return m
}

func (m Model) ShortHelp() []key.Binding {
	keys := []key.Binding{m.keys.Tab, m.keys.Quit, m.keys.Help}
	switch m.state {
	case constants.StateCards, constants.StateShop:
		keys = append(keys, m.keys.Enter)
	case constants.StateBasket:
		keys = append(keys, m.keys.Given, m.keys.Remove)
	}
	return keys
}

func (m Model) FullHelp() [][]key.Binding {
	global := []key.Binding{m.keys.Tab, m.keys.ShiftTab, m.keys.Quit, m.keys.Help, m.keys.Refresh}
	navigation := []key.Binding{m.keys.Up, m.keys.Down}

	var actions []key.Binding
	switch m.state {
	case constants.StateCards, constants.StateShop:
		actions = []key.Binding{m.keys.Enter}
	case constants.StateBasket:
		actions = []key.Binding{m.keys.Given, m.keys.Remove}
	}

	return [][]key.Binding{global, navigation, actions}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// refresh reloads every view from the ledger
func (m *Model) refresh() {
	m.balance = m.ledger.CurrentBalance(m.ctx)
	m.cards = append(m.ledger.AvailableRules(m.ctx), m.ledger.AvailableChores(m.ctx)...)
	m.rewards = m.ledger.AvailableRewards(m.ctx)
	m.basket = slices.Collect(m.ledger.BasketEntries(m.ctx))
	m.clampCursor()
	m.updateValidationStatus()
}

// updateValidationStatus runs the integrity checks and keeps a warning
func (m *Model) updateValidationStatus() {
	snap, err := m.ledger.Snapshot(m.ctx)
	if err != nil {
		m.validationWarning = "⚠ Validation unavailable"
		return
	}
	result := validation.New().ValidateSnapshot(snap)
	if result.HasConflicts() {
		m.validationWarning = fmt.Sprintf("⚠ %d validation warning(s), run 'tipje validate'", len(result.Conflicts))
	} else {
		m.validationWarning = ""
	}
}

// rows is the number of selectable entries on the active tab
func (m Model) rows() int {
	switch m.state {
	case constants.StateCards:
		return len(m.cards)
	case constants.StateShop:
		return len(m.rewards)
	case constants.StateBasket:
		return len(m.basket)
	}
	return 0
}

func (m *Model) clampCursor() {
	if n := m.rows(); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setStatus(msg string) {
	m.status = msg
	m.statusIsError = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusIsError = true
}
