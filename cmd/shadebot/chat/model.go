// Package chat is a terminal client that talks to the dispatcher as a single
// customer, for trying flows without a messaging channel.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"shadebot/internal/dispatch"
	"shadebot/internal/types"
)

// Bot is the part of the dispatcher the chat drives.
type Bot interface {
	Process(ctx context.Context, msg dispatch.Message) dispatch.Result
	Reset(ctx context.Context, userID string) error
	Release(ctx context.Context, userID string) (*types.ConversationRecord, error)
}

// Config configures the chat session.
type Config struct {
	UserID      string
	CampaignRef string
	StoreName   string
}

type role int

const (
	roleUser role = iota
	roleBot
	roleSystem
)

type line struct {
	role    role
	text    string
	handler string
}

// replyMsg carries a finished turn back into Update.
type replyMsg struct {
	res dispatch.Result
}

// systemMsg reports the result of a slash command.
type systemMsg struct {
	text string
	err  error
}

// Model is the bubbletea model of the chat.
type Model struct {
	ctx    context.Context
	bot    Bot
	cfg    Config
	styles Styles

	input    textinput.Model
	viewport viewport.Model
	markdown *glamour.TermRenderer
	lines    []line

	state    types.State
	waiting  bool
	campaign bool
	ready    bool
	width    int
	height   int
}

// New builds the model. The first message carries cfg.CampaignRef.
func New(ctx context.Context, bot Bot, cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Escribe un mensaje o /help..."
	ti.Prompt = "› "
	ti.CharLimit = 500
	ti.Focus()

	return Model{
		ctx:      ctx,
		bot:      bot,
		cfg:      cfg,
		styles:   DefaultStyles(),
		input:    ti,
		viewport: viewport.New(80, 20),
		state:    types.StateNew,
		campaign: cfg.CampaignRef != "",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles keys, window resizes and finished turns.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-inputHeight, 3)
		m.input.Width = max(msg.Width-6, 10)
		if r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(max(msg.Width-8, 20)),
		); err == nil {
			m.markdown = r
		}
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			if strings.HasPrefix(text, "/") {
				return m.command(text)
			}
			m.lines = append(m.lines, line{role: roleUser, text: text})
			m.waiting = true
			m.refresh()
			return m, m.send(text)
		}

	case replyMsg:
		m.waiting = false
		m.state = msg.res.State
		m.lines = append(m.lines, renderOutcome(msg.res))
		m.refresh()
		return m, nil

	case systemMsg:
		text := msg.text
		if msg.err != nil {
			text = "error: " + msg.err.Error()
		}
		m.lines = append(m.lines, line{role: roleSystem, text: text})
		m.refresh()
		return m, nil
	}

	m.input, tiCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) send(text string) tea.Cmd {
	msg := dispatch.Message{UserID: m.cfg.UserID, Text: text}
	if m.campaign {
		msg.CampaignRef = m.cfg.CampaignRef
		m.campaign = false
	}
	ctx, bot := m.ctx, m.bot
	return func() tea.Msg {
		return replyMsg{res: bot.Process(ctx, msg)}
	}
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	ctx, bot, user := m.ctx, m.bot, m.cfg.UserID
	switch strings.Fields(text)[0] {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/reset":
		m.state = types.StateNew
		return m, func() tea.Msg {
			return systemMsg{text: "conversación reiniciada", err: bot.Reset(ctx, user)}
		}
	case "/release":
		return m, func() tea.Msg {
			rec, err := bot.Release(ctx, user)
			if err != nil {
				return systemMsg{err: err}
			}
			return systemMsg{text: "bot reactivado (estado " + string(rec.State) + ")"}
		}
	case "/clear":
		m.lines = nil
		m.refresh()
		return m, nil
	default:
		m.lines = append(m.lines, line{role: roleSystem, text: "comandos: /reset /release /clear /quit"})
		m.refresh()
		return m, nil
	}
}

func renderOutcome(res dispatch.Result) line {
	switch o := res.Outcome.(type) {
	case types.Text:
		return line{role: roleBot, text: o.Content, handler: res.Handler}
	case types.Image:
		return line{role: roleBot, text: fmt.Sprintf("%s\n[imagen] %s", o.Content, o.ImageURL), handler: res.Handler}
	default:
		return line{role: roleSystem, text: fmt.Sprintf("(sin respuesta: %s)", res.Handler)}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}
