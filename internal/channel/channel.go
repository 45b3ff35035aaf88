// Package channel exposes the dispatcher to the outside world: a gin HTTP API
// for direct integrations and operators, and an AMQP bus adapter for the
// multichat hub.
package channel

import (
	"context"

	"shadebot/internal/dispatch"
	"shadebot/internal/store"
	"shadebot/internal/types"
)

// Bot is the slice of the dispatcher the channels drive.
type Bot interface {
	Process(ctx context.Context, msg dispatch.Message) dispatch.Result
	Release(ctx context.Context, userID string) (*types.ConversationRecord, error)
	TakeOver(ctx context.Context, userID string) (*types.ConversationRecord, error)
	Reset(ctx context.Context, userID string) error
	Record(ctx context.Context, userID string) (*types.ConversationRecord, error)
	List(ctx context.Context, state types.State) ([]*types.ConversationRecord, error)
	History(ctx context.Context, userID string, limit int) ([]store.TurnEntry, error)
}

// OutcomeView is the wire form of an Outcome.
type OutcomeView struct {
	Type     types.OutcomeKind `json:"type"`
	Content  string            `json:"content,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
}

// ViewOf renders o for the wire.
func ViewOf(o types.Outcome) OutcomeView {
	switch v := o.(type) {
	case types.Text:
		return OutcomeView{Type: types.KindText, Content: v.Content}
	case types.Image:
		return OutcomeView{Type: types.KindImage, Content: v.Content, ImageURL: v.ImageURL}
	default:
		return OutcomeView{Type: types.KindSilent}
	}
}
