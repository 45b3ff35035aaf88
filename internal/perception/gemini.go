package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"shadebot/internal/config"
	"shadebot/internal/logging"
	"shadebot/internal/usage"
)

// GeminiService talks to the Gemini API through the genai SDK.
type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGeminiService builds a service from config.
func NewGeminiService(ctx context.Context, cfg config.LLMConfig) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiService{
		client:      client,
		model:       cfg.ModelOrDefault(),
		temperature: cfg.Temperature,
		timeout:     cfg.TimeoutDuration(),
	}, nil
}

func (s *GeminiService) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error) {
	return classifyWith(ctx, s, req)
}

func (s *GeminiService) DetectEdgeCase(ctx context.Context, message string) (EdgeCaseResult, error) {
	return detectWith(ctx, s, message)
}

func (s *GeminiService) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(s.temperature)}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return s.generate(ctx, "generate", contents, cfg)
}

func (s *GeminiService) completeJSON(ctx context.Context, op, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	}
	return s.generate(ctx, op, genai.Text(user), cfg)
}

func (s *GeminiService) generate(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Models.GenerateContent(callCtx, s.model, contents, cfg)
	var text string
	if err == nil {
		text = strings.TrimSpace(resp.Text())
		if text == "" {
			err = fmt.Errorf("empty response")
		}
	}
	usage.ObserveCompletion(op, err, time.Since(start))
	if err != nil {
		logging.APIWarn("gemini %s failed after %v: %v", op, time.Since(start), err)
		return "", fmt.Errorf("gemini %s: %w", op, err)
	}
	if md := resp.UsageMetadata; md != nil {
		usage.TrackFromContext(ctx, config.ProviderGemini, s.model, op, int(md.PromptTokenCount), int(md.CandidatesTokenCount))
	}
	logging.APIDebug("gemini %s ok in %v", op, time.Since(start))
	return text, nil
}
