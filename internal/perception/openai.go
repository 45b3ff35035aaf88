package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"shadebot/internal/config"
	"shadebot/internal/logging"
	"shadebot/internal/usage"
)

// chatClient is the slice of the go-openai client the service uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIService talks to the OpenAI chat completions API, or any endpoint
// compatible with it when BaseURL is set.
type OpenAIService struct {
	client      chatClient
	model       string
	temperature float32
	timeout     time.Duration
}

// NewOpenAIService builds a service from config. The API key comes from the
// config or the OPENAI_API_KEY override only.
func NewOpenAIService(cfg config.LLMConfig) *OpenAIService {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newOpenAIService(openai.NewClientWithConfig(oc), cfg)
}

func newOpenAIService(client chatClient, cfg config.LLMConfig) *OpenAIService {
	return &OpenAIService{
		client:      client,
		model:       cfg.ModelOrDefault(),
		temperature: cfg.Temperature,
		timeout:     cfg.TimeoutDuration(),
	}
}

func (s *OpenAIService) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error) {
	return classifyWith(ctx, s, req)
}

func (s *OpenAIService) DetectEdgeCase(ctx context.Context, message string) (EdgeCaseResult, error) {
	return detectWith(ctx, s, message)
}

func (s *OpenAIService) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: s.temperature,
	}
	return s.create(ctx, "generate", req)
}

func (s *OpenAIService) completeJSON(ctx context.Context, op, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	return s.create(ctx, op, req)
}

func (s *OpenAIService) create(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(callCtx, req)
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("no choices")
	}
	usage.ObserveCompletion(op, err, time.Since(start))
	if err != nil {
		logging.APIWarn("openai %s failed after %v: %v", op, time.Since(start), err)
		return "", fmt.Errorf("openai %s: %w", op, err)
	}
	usage.TrackFromContext(ctx, config.ProviderOpenAI, s.model, op, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	logging.APIDebug("openai %s ok in %v (%d tokens)", op, time.Since(start), resp.Usage.TotalTokens)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
