package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 2
	inputHeight  = 3
)

// Styles holds the lipgloss styles of the chat.
type Styles struct {
	Header  lipgloss.Style
	User    lipgloss.Style
	Bot     lipgloss.Style
	System  lipgloss.Style
	Handler lipgloss.Style
	Input   lipgloss.Style
}

// DefaultStyles returns the stock palette.
func DefaultStyles() Styles {
	accent := lipgloss.Color("#2E8B57")
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(accent).Padding(0, 1),
		User:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF")).Bold(true),
		Bot:     lipgloss.NewStyle().Foreground(accent).Bold(true),
		System:  lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Italic(true),
		Handler: lipgloss.NewStyle().Foreground(lipgloss.Color("#606060")),
		Input:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
	}
}

// View renders header, history and input.
func (m Model) View() string {
	if !m.ready {
		return "Iniciando..."
	}
	title := "shadebot"
	if m.cfg.StoreName != "" {
		title += " · " + m.cfg.StoreName
	}
	header := m.styles.Header.Render(title) + " " +
		m.styles.Handler.Render("usuario "+m.cfg.UserID+" · estado "+string(m.state))

	input := m.input.View()
	if m.waiting {
		input = m.styles.System.Render("escribiendo...")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.styles.Input.Width(max(m.width-2, 10)).Render(input),
	)
}

func (m Model) renderHistory() string {
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		switch l.role {
		case roleUser:
			b.WriteString(m.styles.User.Render("Tú: "))
			b.WriteString(l.text)
		case roleBot:
			b.WriteString(m.styles.Bot.Render("Bot: "))
			b.WriteString(m.renderMarkdown(l.text))
			if l.handler != "" {
				b.WriteString(" " + m.styles.Handler.Render("["+l.handler+"]"))
			}
		default:
			b.WriteString(m.styles.System.Render(l.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMarkdown(text string) string {
	if m.markdown == nil {
		return text
	}
	out, err := m.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}
