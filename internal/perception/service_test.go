package perception

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadebot/internal/config"
	"shadebot/internal/usage"
)

func testOpenAI(client chatClient) *OpenAIService {
	return newOpenAIService(client, config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "test"})
}

func TestOpenAIService_ClassifyUsesJSONMode(t *testing.T) {
	client := &fakeChatClient{reply: `{"intent":"hours","confidence":0.88,"reasoning":"asks when open"}`}
	svc := testOpenAI(client)

	tracker, err := usage.NewTracker("")
	require.NoError(t, err)
	ctx := usage.NewContext(context.Background(), tracker)

	got, err := svc.Classify(ctx, ClassifyRequest{
		Message: "a que hora abren?",
		Context: ClassifyContext{CampaignRef: "promo-confeccionada"},
		Intents: DefaultDefinitions().List(),
	})
	require.NoError(t, err)
	assert.Equal(t, ClassifyResult{Intent: "hours", Confidence: 0.88, Reasoning: "asks when open"}, got)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	assert.Contains(t, req.Messages[1].Content, "promo-confeccionada")
	assert.Contains(t, req.Messages[1].Content, "- shipping:")

	assert.Equal(t, int64(52), tracker.Stats().ByOperation["classify"].Total)
}

func TestOpenAIService_MalformedReply(t *testing.T) {
	svc := testOpenAI(&fakeChatClient{reply: "claro, es shipping"})
	_, err := svc.Classify(context.Background(), ClassifyRequest{Message: "x"})
	assert.ErrorIs(t, err, ErrMalformedReply)

	svc = testOpenAI(&fakeChatClient{reply: `{"confidence":0.9}`})
	_, err = svc.Classify(context.Background(), ClassifyRequest{Message: "x"})
	assert.ErrorIs(t, err, ErrMalformedReply)
}

func TestOpenAIService_Errors(t *testing.T) {
	boom := errors.New("503")
	_, err := testOpenAI(&fakeChatClient{err: boom}).DetectEdgeCase(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	_, err = testOpenAI(&fakeChatClient{}).Generate(context.Background(), nil)
	assert.Error(t, err, "no choices is an error")
}

func TestOpenAIService_DetectEdgeCaseToleratesFence(t *testing.T) {
	svc := testOpenAI(&fakeChatClient{reply: "```json\n{\"is_unintelligible\":true,\"is_complex\":false,\"confidence\":0.93}\n```"})
	got, err := svc.DetectEdgeCase(context.Background(), "asd qwe zxc")
	require.NoError(t, err)
	assert.True(t, got.Unintelligible)
	assert.Equal(t, 0.93, got.Confidence)
}

func TestOpenAIService_GenerateMapsRoles(t *testing.T) {
	client := &fakeChatClient{reply: "  Claro, con gusto.  "}
	got, err := testOpenAI(client).Generate(context.Background(), []ChatMessage{
		{Role: "system", Content: "s"},
		{Role: "assistant", Content: "a"},
		{Role: "user", Content: "u"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Claro, con gusto.", got)

	msgs := client.requests[0].Messages
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[1].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[2].Role)
	assert.Nil(t, client.requests[0].ResponseFormat)
}

func TestNewService(t *testing.T) {
	svc, err := NewService(context.Background(), config.LLMConfig{})
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.IsType(t, NoopService{}, svc)

	svc, err = NewService(context.Background(), config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIService{}, svc)

	_, err = NewService(context.Background(), config.LLMConfig{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)
}

func TestNoopService(t *testing.T) {
	var svc NoopService
	_, err := svc.Classify(context.Background(), ClassifyRequest{})
	assert.ErrorIs(t, err, ErrNoProvider)
	_, err = svc.DetectEdgeCase(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoProvider)
	_, err = svc.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoProvider)
}
