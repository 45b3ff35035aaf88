package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"shadebot/internal/perception"
	"shadebot/internal/types"
)

// fakeService is a scripted CompletionService. It is safe for the concurrent
// classify and edge-case calls the resolver makes.
type fakeService struct {
	mu sync.Mutex

	classify    perception.ClassifyResult
	classifyErr error
	edge        perception.EdgeCaseResult
	edgeErr     error
	generated   string
	generateErr error

	edgeCalls     int
	generateCalls int
	lastMessages  []perception.ChatMessage
}

func (f *fakeService) Classify(context.Context, perception.ClassifyRequest) (perception.ClassifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classify, f.classifyErr
}

func (f *fakeService) DetectEdgeCase(context.Context, string) (perception.EdgeCaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edgeCalls++
	return f.edge, f.edgeErr
}

func (f *fakeService) Generate(_ context.Context, msgs []perception.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastMessages = append([]perception.ChatMessage(nil), msgs...)
	return f.generated, f.generateErr
}

func (f *fakeService) edgeChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edgeCalls
}

func (f *fakeService) messages() []perception.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMessages
}

var errDown = errors.New("backend down")

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (*types.ConversationRecord, error) {
	return nil, errDown
}

func (brokenStore) Save(context.Context, string, types.RecordPatch) error { return errDown }

func (brokenStore) Reset(context.Context, string) error { return errDown }

func (brokenStore) Close() error { return nil }

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
