// Package store persists conversation records.
//
// Every backend implements the same contract: Load is get-or-create, Save is
// a field-level merge of a RecordPatch that always refreshes LastActivityAt,
// and Reset deletes the record. Backends also keep a short per-user turn
// history used as context by the generative fallback.
package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"shadebot/internal/types"
)

// ErrNotFound is returned internally by backends when a record is absent.
var ErrNotFound = errors.New("store: record not found")

// Store is the conversation store contract.
type Store interface {
	// Load returns the record for userID, creating and persisting a default
	// record (state new, persona assigned) when absent.
	Load(ctx context.Context, userID string) (*types.ConversationRecord, error)
	// Save merges patch into the record and refreshes LastActivityAt.
	Save(ctx context.Context, userID string, patch types.RecordPatch) error
	// Reset deletes the record and its history.
	Reset(ctx context.Context, userID string) error
	Close() error
}

// Role of a history entry.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// TurnEntry is one message in a conversation's history.
type TurnEntry struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Handler string    `json:"handler,omitempty"`
	At      time.Time `json:"at"`
}

// History is the optional turn log.
type History interface {
	AppendTurn(ctx context.Context, userID string, entry TurnEntry) error
	// RecentTurns returns up to limit entries, oldest first.
	RecentTurns(ctx context.Context, userID string, limit int) ([]TurnEntry, error)
}

// Lister lists records by state, for the admin surface.
type Lister interface {
	List(ctx context.Context, state types.State) ([]*types.ConversationRecord, error)
}

// Options are shared by every backend.
type Options struct {
	// Personas is the pool a display name is drawn from at creation.
	Personas []string
	// HistoryLimit caps the stored turns per user.
	HistoryLimit int
	// Now and Pick are overridable for tests.
	Now  func() time.Time
	Pick func(n int) int
}

func (o Options) withDefaults() Options {
	if len(o.Personas) == 0 {
		o.Personas = []string{"Sofía"}
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 20
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Pick == nil {
		o.Pick = rand.IntN
	}
	return o
}

// newRecord builds the default record with a persona drawn from the pool.
func (o Options) newRecord(userID string) *types.ConversationRecord {
	persona := o.Personas[o.Pick(len(o.Personas))]
	return types.NewRecord(userID, persona, o.Now())
}

// apply merges patch into rec and stamps activity.
func (o Options) apply(rec *types.ConversationRecord, patch types.RecordPatch) {
	rec.Apply(patch)
	rec.LastActivityAt = o.Now()
}
