package perception

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// fakeService is a scripted CompletionService.
type fakeService struct {
	mu sync.Mutex

	classify    ClassifyResult
	classifyErr error
	edge        EdgeCaseResult
	edgeErr     error
	generated   string
	generateErr error

	classifyCalls int
	edgeCalls     int
	lastRequest   ClassifyRequest

	// barrier, when set, makes Classify and DetectEdgeCase wait for each
	// other, proving they run concurrently.
	barrier *sync.WaitGroup
}

func (f *fakeService) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error) {
	f.mu.Lock()
	f.classifyCalls++
	f.lastRequest = req
	f.mu.Unlock()
	if err := f.rendezvous(ctx); err != nil {
		return ClassifyResult{}, err
	}
	return f.classify, f.classifyErr
}

func (f *fakeService) DetectEdgeCase(ctx context.Context, _ string) (EdgeCaseResult, error) {
	f.mu.Lock()
	f.edgeCalls++
	f.mu.Unlock()
	if err := f.rendezvous(ctx); err != nil {
		return EdgeCaseResult{}, err
	}
	return f.edge, f.edgeErr
}

func (f *fakeService) Generate(context.Context, []ChatMessage) (string, error) {
	return f.generated, f.generateErr
}

func (f *fakeService) rendezvous(ctx context.Context) error {
	if f.barrier == nil {
		return nil
	}
	f.barrier.Done()
	done := make(chan struct{})
	go func() {
		f.barrier.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeService) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classifyCalls, f.edgeCalls
}

// fakeChatClient stands in for the go-openai client.
type fakeChatClient struct {
	reply    string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.reply == "" {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
		Usage:   openai.Usage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52},
	}, nil
}
