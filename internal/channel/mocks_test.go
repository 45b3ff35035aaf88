package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"shadebot/internal/dispatch"
	"shadebot/internal/store"
	"shadebot/internal/types"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// fakeBot records calls and answers with a scripted outcome.
type fakeBot struct {
	mu sync.Mutex

	outcome  types.Outcome
	records  map[string]*types.ConversationRecord
	history  []store.TurnEntry
	listErr  error
	actErr   error
	messages []dispatch.Message
	actions  []string
}

func newFakeBot(out types.Outcome) *fakeBot {
	return &fakeBot{outcome: out, records: map[string]*types.ConversationRecord{}}
}

func (f *fakeBot) Process(_ context.Context, msg dispatch.Message) dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return dispatch.Result{Outcome: f.outcome, Handler: "fake", RequestID: "req-1", State: types.StateActive}
}

func (f *fakeBot) record(userID string) *types.ConversationRecord {
	rec, ok := f.records[userID]
	if !ok {
		rec = types.NewRecord(userID, "Sofía", t0)
		f.records[userID] = rec
	}
	return rec
}

func (f *fakeBot) Release(_ context.Context, userID string) (*types.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "release:"+userID)
	if f.actErr != nil {
		return nil, f.actErr
	}
	rec := f.record(userID)
	rec.State = types.StateActive
	return rec, nil
}

func (f *fakeBot) TakeOver(_ context.Context, userID string) (*types.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "takeover:"+userID)
	if f.actErr != nil {
		return nil, f.actErr
	}
	rec := f.record(userID)
	rec.State = types.StateHumanActive
	return rec, nil
}

func (f *fakeBot) Reset(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "reset:"+userID)
	delete(f.records, userID)
	return f.actErr
}

func (f *fakeBot) Record(_ context.Context, userID string) (*types.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(userID), nil
}

func (f *fakeBot) List(_ context.Context, state types.State) ([]*types.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*types.ConversationRecord
	for _, r := range f.records {
		if state == "" || r.State == state {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBot) History(_ context.Context, _ string, limit int) ([]store.TurnEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit < len(f.history) {
		return f.history[len(f.history)-limit:], nil
	}
	return f.history, nil
}

var errBroker = errors.New("broker unavailable")

// fakePublisher captures published envelopes.
type fakePublisher struct {
	mu   sync.Mutex
	err  error
	keys []string
	sent []Envelope[OutboundV1]
}

func (p *fakePublisher) Publish(_ context.Context, key string, env Envelope[OutboundV1]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.sent = append(p.sent, env)
	return nil
}

func (p *fakePublisher) Close() error { return nil }
