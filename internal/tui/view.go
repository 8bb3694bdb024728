package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/tipje/internal/constants"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string

	switch m.state {
	case constants.StateCards:
		content = m.viewCards()
	case constants.StateShop:
		content = m.viewShop()
	case constants.StateBasket:
		content = m.viewBasket()
	case constants.StateConfirmRemove, constants.StateEnterPIN:
		content = m.viewForm()
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, m.viewTabs(), m.viewBalance()),
		content,
		m.viewStatus(),
		m.help.View(m),
	)
}

func (m Model) viewTabs() string {
	active := m.state
	if active > constants.StateBasket {
		active = constants.StateBasket
	}
	var tabs []string
	for i, title := range []string{"Cards", "Shop", "Basket"} {
		if active == constants.SessionState(i) {
			tabs = append(tabs, activeTabStyle.Render(title))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(title))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) viewBalance() string {
	return balanceStyle.Render(fmt.Sprintf("%s: %d 🥜", m.kidName, m.balance))
}

func (m Model) line(i int, text string) string {
	if i == m.cursor {
		return selectedStyle.Render("> " + text)
	}
	return "  " + text
}

func (m Model) viewCards() string {
	if len(m.cards) == 0 {
		return docStyle.Render(mutedStyle.Render("No rules or chores yet. Add some with 'tipje card pick'."))
	}
	var b strings.Builder
	for i, c := range m.cards {
		b.WriteString(m.line(i, fmt.Sprintf("[%s] %s  +%d", c.Kind, c.Title, c.Peanuts)))
		b.WriteString("\n")
	}
	return docStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) viewShop() string {
	if len(m.rewards) == 0 {
		return docStyle.Render(mutedStyle.Render("The shop is empty."))
	}
	var b strings.Builder
	for i, r := range m.rewards {
		text := fmt.Sprintf("%s  %d", r.Title, r.Peanuts)
		if r.Peanuts > m.balance {
			text = mutedStyle.Render(text + " (save up)")
		}
		b.WriteString(m.line(i, text))
		b.WriteString("\n")
	}
	return docStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) viewBasket() string {
	if len(m.basket) == 0 {
		return docStyle.Render(mutedStyle.Render("The basket is empty."))
	}
	var b strings.Builder
	for i, p := range m.basket {
		b.WriteString(m.line(i, fmt.Sprintf("%s  %d  bought %s", p.Title, p.Cost, p.PurchasedAt.Local().Format(constants.TimestampFormat))))
		b.WriteString("\n")
	}
	return docStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) viewForm() string {
	if m.form == nil {
		return ""
	}
	return lipgloss.Place(m.width, max(m.height-4, 0),
		lipgloss.Center, lipgloss.Center,
		m.form.View(),
	)
}

func (m Model) viewStatus() string {
	var lines []string
	if m.status != "" {
		if m.statusIsError {
			lines = append(lines, dangerStyle.Render(m.status))
		} else {
			lines = append(lines, successStyle.Render(m.status))
		}
	}
	if m.validationWarning != "" {
		lines = append(lines, warningStyle.Render(m.validationWarning))
	}
	return strings.Join(lines, "\n")
}
