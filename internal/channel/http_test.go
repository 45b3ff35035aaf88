package channel

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadebot/internal/dispatch"
	"shadebot/internal/store"
	"shadebot/internal/types"
)

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestViewOf(t *testing.T) {
	assert.Equal(t, OutcomeView{Type: types.KindSilent}, ViewOf(types.Silent{}))
	assert.Equal(t, OutcomeView{Type: types.KindText, Content: "hola"}, ViewOf(types.Text{Content: "hola"}))
	assert.Equal(t,
		OutcomeView{Type: types.KindImage, Content: "mira", ImageURL: "https://img/x.jpg"},
		ViewOf(types.Image{Content: "mira", ImageURL: "https://img/x.jpg"}))
}

func TestPostMessage(t *testing.T) {
	bot := newFakeBot(types.Text{Content: "¡Hola! Soy Sofía."})
	s := NewServer(bot, "")

	w := do(t, s, http.MethodPost, "/v1/messages", MessageRequest{UserID: "521", Text: "hola", CampaignRef: "promo"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, types.KindText, resp.Outcome.Type)
	assert.Equal(t, "¡Hola! Soy Sofía.", resp.Outcome.Content)

	require.Len(t, bot.messages, 1)
	assert.Equal(t, dispatch.Message{UserID: "521", Text: "hola", CampaignRef: "promo"}, bot.messages[0])
}

func TestPostMessage_SilentAndBadRequest(t *testing.T) {
	s := NewServer(newFakeBot(types.Silent{}), "")

	w := do(t, s, http.MethodPost, "/v1/messages", MessageRequest{UserID: "521", Text: "ok"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"silent"`)

	w = do(t, s, http.MethodPost, "/v1/messages", map[string]string{"text": "sin usuario"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationEndpoints(t *testing.T) {
	bot := newFakeBot(types.Silent{})
	bot.history = []store.TurnEntry{
		{Role: store.RoleUser, Content: "hola", At: t0},
		{Role: store.RoleBot, Content: "¡Hola!", Handler: "greeting", At: t0},
	}
	s := NewServer(bot, "")

	w := do(t, s, http.MethodPost, "/v1/conversations/521/takeover", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(types.StateHumanActive))

	w = do(t, s, http.MethodGet, "/v1/conversations?state=human_active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Conversations []types.ConversationRecord `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "521", list.Conversations[0].UserID)

	w = do(t, s, http.MethodGet, "/v1/conversations/521?history=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var conv ConversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	require.Len(t, conv.History, 1)
	assert.Equal(t, "greeting", conv.History[0].Handler)

	w = do(t, s, http.MethodPost, "/v1/conversations/521/release", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(types.StateActive))

	w = do(t, s, http.MethodDelete, "/v1/conversations/521", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []string{"takeover:521", "release:521", "reset:521"}, bot.actions)
}

func TestConversationEndpoints_Errors(t *testing.T) {
	bot := newFakeBot(types.Silent{})
	bot.listErr = dispatch.ErrListUnsupported
	bot.actErr = errBroker
	s := NewServer(bot, "")

	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/v1/conversations", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodPost, "/v1/conversations/521/release", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/conversations/521?history=x", nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := NewServer(newFakeBot(types.Silent{}), "")

	w := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
