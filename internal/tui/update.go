package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/models"
)

const tabCount = 3

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = ws.Width
		m.height = ws.Height
		m.help.Width = ws.Width
		return m, nil
	}

	switch m.state {
	case constants.StateConfirmRemove:
		return m, m.handleConfirmRemove(msg)
	case constants.StateEnterPIN:
		return m, m.handleEnterPIN(msg)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Tab):
		m.state = (m.state + 1) % tabCount
		m.cursor = 0
	case key.Matches(keyMsg, m.keys.ShiftTab):
		m.state = (m.state - 1 + tabCount) % tabCount
		m.cursor = 0
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < m.rows()-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(keyMsg, m.keys.Refresh):
		m.refresh()
		m.setStatus("Refreshed")
	case key.Matches(keyMsg, m.keys.Enter):
		switch m.state {
		case constants.StateCards:
			m.completeSelected()
		case constants.StateShop:
			m.buySelected()
		}
	case key.Matches(keyMsg, m.keys.Given):
		if m.state == constants.StateBasket {
			return m, m.startGive()
		}
	case key.Matches(keyMsg, m.keys.Remove):
		if m.state == constants.StateBasket {
			return m, m.startRemove()
		}
	}
	return m, nil
}

func (m *Model) completeSelected() {
	if m.cursor >= len(m.cards) {
		return
	}
	card := m.cards[m.cursor]
	tx, err := m.ledger.RecordCompletion(m.ctx, card.ID, card.Kind)
	if err != nil {
		m.setError(err)
		return
	}
	m.refresh()
	m.setStatus(fmt.Sprintf("+%d peanuts for %s", tx.Amount, card.Title))
}

func (m *Model) buySelected() {
	if m.cursor >= len(m.rewards) {
		return
	}
	reward := m.rewards[m.cursor]
	p, err := m.ledger.PurchaseReward(m.ctx, reward.ID)
	if err != nil {
		m.setError(err)
		return
	}
	m.refresh()
	m.setStatus(fmt.Sprintf("%s is in the basket (-%d peanuts)", p.Title, p.Cost))
}

func (m *Model) selectedPurchase() (models.RewardPurchase, bool) {
	if m.cursor >= len(m.basket) {
		return models.RewardPurchase{}, false
	}
	return m.basket[m.cursor], true
}

// startGive marks the selected purchase given, asking for the PIN first
// when a check is configured
func (m *Model) startGive() tea.Cmd {
	p, ok := m.selectedPurchase()
	if !ok {
		return nil
	}
	if m.pinCheck == nil {
		m.give(p.ID)
		return nil
	}
	m.pendingGiveID = p.ID
	m.pinEntry = &PINFormModel{}
	m.form = NewPINForm(m.pinEntry)
	m.state = constants.StateEnterPIN
	return m.form.Init()
}

func (m *Model) give(purchaseID string) {
	p, err := m.ledger.ConfirmGiven(m.ctx, purchaseID)
	if err != nil {
		m.setError(err)
		return
	}
	m.refresh()
	m.setStatus(fmt.Sprintf("%s was given", p.Title))
}

func (m *Model) startRemove() tea.Cmd {
	p, ok := m.selectedPurchase()
	if !ok {
		return nil
	}
	m.pendingRemoveID = p.ID
	m.confirmation = &ConfirmationFormModel{
		Message: fmt.Sprintf("Remove %s from the basket and refund %d peanuts?", p.Title, p.Cost),
	}
	m.form = NewConfirmationForm(m.confirmation)
	m.state = constants.StateConfirmRemove
	return m.form.Init()
}

func (m *Model) remove(purchaseID string) {
	tx, err := m.ledger.RemoveFromBasket(m.ctx, purchaseID)
	if err != nil {
		m.setError(err)
		return
	}
	m.refresh()
	m.setStatus(fmt.Sprintf("Refunded %d peanuts", tx.Amount))
}

// updateForm forwards msg to the active form. It returns false when the
// user pressed esc.
func (m *Model) updateForm(msg tea.Msg) (tea.Cmd, bool) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		return nil, false
	}
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	return cmd, true
}

func (m *Model) closeForm() {
	m.form = nil
	m.pendingRemoveID = ""
	m.pendingGiveID = ""
	m.confirmation = nil
	m.pinEntry = nil
	m.state = constants.StateBasket
}

func (m *Model) handleConfirmRemove(msg tea.Msg) tea.Cmd {
	cmd, ok := m.updateForm(msg)
	if !ok {
		m.closeForm()
		return nil
	}
	switch m.form.State {
	case huh.StateCompleted:
		if m.confirmation.Confirmed {
			m.remove(m.pendingRemoveID)
		}
		m.closeForm()
	case huh.StateAborted:
		m.closeForm()
	}
	return cmd
}

func (m *Model) handleEnterPIN(msg tea.Msg) tea.Cmd {
	cmd, ok := m.updateForm(msg)
	if !ok {
		m.closeForm()
		return nil
	}
	switch m.form.State {
	case huh.StateCompleted:
		if err := m.pinCheck(m.ctx, m.pinEntry.PIN); err != nil {
			m.setError(err)
		} else {
			m.give(m.pendingGiveID)
		}
		m.closeForm()
	case huh.StateAborted:
		m.closeForm()
	}
	return cmd
}

// NewConfirmationForm creates a yes/no form bound to fm
func NewConfirmationForm(fm *ConfirmationFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fm.Message).
				Affirmative("Yes").
				Negative("No").
				Value(&fm.Confirmed),
		),
	).WithShowHelp(false)
}

// NewPINForm creates a masked input for the guardian PIN
func NewPINForm(fm *PINFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Guardian PIN").
				EchoMode(huh.EchoModePassword).
				Value(&fm.PIN),
		),
	).WithShowHelp(false)
}
