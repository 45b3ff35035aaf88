package perception

import (
	"context"
	"errors"
	"fmt"

	"shadebot/internal/config"
	"shadebot/internal/types"
)

var (
	// ErrNoProvider is returned by NoopService and by NewService when no
	// completion provider is configured.
	ErrNoProvider = errors.New("perception: no completion provider configured")
	// ErrMalformedReply means the completion service answered with text that
	// does not decode into the expected shape.
	ErrMalformedReply = errors.New("perception: malformed completion reply")
)

// ClassifyContext is the lightweight conversation context sent along with a
// message to the classifier.
type ClassifyContext struct {
	PreviousIntent string
	CampaignRef    string
}

// ClassifyRequest asks the service to pick one of Intents for Message.
type ClassifyRequest struct {
	Message string
	Context ClassifyContext
	Intents []types.IntentDefinition
}

// ClassifyResult is the raw service answer.
type ClassifyResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// EdgeCaseResult is the raw edge-case verdict.
type EdgeCaseResult struct {
	Unintelligible bool    `json:"is_unintelligible"`
	Complex        bool    `json:"is_complex"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// ChatMessage is one message of a generation request.
type ChatMessage struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// CompletionService is the external language-model collaborator. Failures
// are returned as errors and kept distinct from low-confidence answers.
type CompletionService interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error)
	DetectEdgeCase(ctx context.Context, message string) (EdgeCaseResult, error)
	Generate(ctx context.Context, messages []ChatMessage) (string, error)
}

// NoopService is used when no provider is configured. Every call fails with
// ErrNoProvider, which the classifier degrades to "unknown".
type NoopService struct{}

func (NoopService) Classify(context.Context, ClassifyRequest) (ClassifyResult, error) {
	return ClassifyResult{}, ErrNoProvider
}

func (NoopService) DetectEdgeCase(context.Context, string) (EdgeCaseResult, error) {
	return EdgeCaseResult{}, ErrNoProvider
}

func (NoopService) Generate(context.Context, []ChatMessage) (string, error) {
	return "", ErrNoProvider
}

// NewService builds the completion service for cfg. A disabled config yields
// NoopService and ErrNoProvider so callers can log and carry on.
func NewService(ctx context.Context, cfg config.LLMConfig) (CompletionService, error) {
	if !cfg.Enabled() {
		return NoopService{}, ErrNoProvider
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIService(cfg), nil
	case config.ProviderGemini:
		svc, err := NewGeminiService(ctx, cfg)
		if err != nil {
			return NoopService{}, err
		}
		return svc, nil
	default:
		return NoopService{}, fmt.Errorf("perception: unsupported provider %q", cfg.Provider)
	}
}
