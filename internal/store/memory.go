package store

import (
	"context"
	"sort"
	"sync"

	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// MemoryStore keeps records in a map. Used by tests and the chat command.
type MemoryStore struct {
	mu      sync.RWMutex
	opts    Options
	records map[string]*types.ConversationRecord
	turns   map[string][]TurnEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts.withDefaults(),
		records: make(map[string]*types.ConversationRecord),
		turns:   make(map[string][]TurnEntry),
	}
}

func (s *MemoryStore) Load(_ context.Context, userID string) (*types.ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = s.opts.newRecord(userID)
		s.records[userID] = rec
		logging.StoreDebug("memory: created record for %s (persona %s)", userID, rec.PersonaName)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, userID string, patch types.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = s.opts.newRecord(userID)
		s.records[userID] = rec
	}
	s.opts.apply(rec, patch)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	delete(s.turns, userID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) AppendTurn(_ context.Context, userID string, entry TurnEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.At.IsZero() {
		entry.At = s.opts.Now()
	}
	turns := append(s.turns[userID], entry)
	if over := len(turns) - s.opts.HistoryLimit; over > 0 {
		turns = append([]TurnEntry(nil), turns[over:]...)
	}
	s.turns[userID] = turns
	return nil
}

func (s *MemoryStore) RecentTurns(_ context.Context, userID string, limit int) ([]TurnEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[userID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]TurnEntry(nil), turns...), nil
}

func (s *MemoryStore) List(_ context.Context, state types.State) ([]*types.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.ConversationRecord
	for _, rec := range s.records {
		if state == "" || rec.State == state {
			out = append(out, rec.Clone())
		}
	}
	sortByActivity(out)
	return out, nil
}

// sortByActivity orders most recently active first.
func sortByActivity(recs []*types.ConversationRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LastActivityAt.Equal(recs[j].LastActivityAt) {
			return recs[i].LastActivityAt.After(recs[j].LastActivityAt)
		}
		return recs[i].UserID < recs[j].UserID
	})
}
