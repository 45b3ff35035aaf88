package chat

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadebot/internal/dispatch"
	"shadebot/internal/types"
)

type stubBot struct {
	mu     sync.Mutex
	sent   []dispatch.Message
	resets int
}

func (s *stubBot) Process(_ context.Context, msg dispatch.Message) dispatch.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return dispatch.Result{Outcome: types.Text{Content: "eco: " + msg.Text}, Handler: "echo", State: types.StateActive}
}

func (s *stubBot) Reset(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

func (s *stubBot) Release(context.Context, string) (*types.ConversationRecord, error) {
	return &types.ConversationRecord{State: types.StateActive}, nil
}

func typeText(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func TestModel_SendAndReply(t *testing.T) {
	bot := &stubBot{}
	m := sized(New(context.Background(), bot, Config{UserID: "cli", CampaignRef: "promo-confeccionada"}))

	m, cmd := typeText(t, m, "hola")
	require.NotNil(t, cmd)
	assert.True(t, m.waiting)

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.waiting)
	assert.Equal(t, types.StateActive, m.state)
	require.Len(t, m.lines, 2)
	assert.Equal(t, "eco: hola", m.lines[1].text)
	assert.Equal(t, "echo", m.lines[1].handler)

	// the campaign ref rides only on the first message
	m, cmd = typeText(t, m, "3x4")
	_, _ = m.Update(cmd())
	require.Len(t, bot.sent, 2)
	assert.Equal(t, "promo-confeccionada", bot.sent[0].CampaignRef)
	assert.Empty(t, bot.sent[1].CampaignRef)
}

func TestModel_IgnoresEnterWhileWaiting(t *testing.T) {
	m := sized(New(context.Background(), &stubBot{}, Config{UserID: "cli"}))
	m, _ = typeText(t, m, "hola")
	m, cmd := typeText(t, m, "otra vez")
	assert.Nil(t, cmd)
	assert.Len(t, m.lines, 1)
}

func TestModel_Commands(t *testing.T) {
	bot := &stubBot{}
	m := sized(New(context.Background(), bot, Config{UserID: "cli"}))

	m, cmd := typeText(t, m, "/reset")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, 1, bot.resets)
	assert.Equal(t, "conversación reiniciada", m.lines[len(m.lines)-1].text)

	m, _ = typeText(t, m, "/clear")
	assert.Empty(t, m.lines)

	_, cmd = typeText(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRenderOutcome(t *testing.T) {
	l := renderOutcome(dispatch.Result{Outcome: types.Image{Content: "Rollos", ImageURL: "https://img/r.jpg"}, Handler: "roll_query"})
	assert.Equal(t, roleBot, l.role)
	assert.Contains(t, l.text, "[imagen] https://img/r.jpg")

	l = renderOutcome(dispatch.Result{Outcome: types.Silent{}, Handler: "gate"})
	assert.Equal(t, roleSystem, l.role)
}
