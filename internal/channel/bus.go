package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shadebot/internal/config"
	"shadebot/internal/dispatch"
	"shadebot/internal/logging"
	"shadebot/internal/types"
)

const producer = "shadebot"

// Event types carried in Meta.Type.
const (
	EventInbound    = "chat.inbound.v1"
	EventOutbound   = "chat.outbound.v1"
	EventAssignment = "chat.assignment.v1"
)

var (
	// ErrMalformed marks a delivery that can never be processed.
	ErrMalformed = errors.New("channel: malformed delivery")
	// ErrUnknownKey marks a delivery on a routing key the bus does not handle.
	ErrUnknownKey = errors.New("channel: unknown routing key")
)

// Meta is the envelope header shared by every hub event.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope wraps an event payload.
type Envelope[T any] struct {
	Meta Meta `json:"meta"`
	Data T    `json:"data"`
}

// ProviderRef names the messaging provider instance.
type ProviderRef struct {
	Provider   string `json:"provider"`
	InstanceID string `json:"instance_id"`
}

// ConversationKey identifies a chat. ProviderChatID is the bot's user ID.
type ConversationKey struct {
	ConversationID int64  `json:"conversation_id"`
	ProviderChatID string `json:"provider_chat_id"`
}

// InboundV1 is a customer message forwarded by the hub.
type InboundV1 struct {
	Provider          ProviderRef     `json:"provider"`
	Conversation      ConversationKey `json:"conversation"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	Kind              string          `json:"kind"` // text, image, voice, file, system
	Text              string          `json:"text"`
	CampaignRef       string          `json:"campaign_ref,omitempty"`
	ReceivedAt        time.Time       `json:"received_at"`
}

// OutboundV1 is a bot reply for the hub to deliver.
type OutboundV1 struct {
	Provider     ProviderRef     `json:"provider"`
	Conversation ConversationKey `json:"conversation"`
	OutboundID   string          `json:"outbound_id"`
	Kind         string          `json:"kind"` // text, image
	Text         string          `json:"text"`
	ImageURL     string          `json:"image_url,omitempty"`
	AtHub        time.Time       `json:"at_hub"`
}

// AssignmentV1 reports a human agent picking up or releasing a chat.
type AssignmentV1 struct {
	Provider     ProviderRef     `json:"provider"`
	Conversation ConversationKey `json:"conversation"`
	ManagerID    uint64          `json:"manager_id"`
	AssignedAt   time.Time       `json:"assigned_at"`
	Released     bool            `json:"released,omitempty"`
}

// Publisher sends outbound events.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope[OutboundV1]) error
	Close() error
}

// Bus turns hub deliveries into dispatcher calls and replies.
type Bus struct {
	bot Bot
	pub Publisher
	cfg config.AMQPConfig
	now func() time.Time
}

// NewBus wires bot and pub with the routing keys from cfg.
func NewBus(bot Bot, pub Publisher, cfg config.AMQPConfig) *Bus {
	return &Bus{bot: bot, pub: pub, cfg: cfg, now: time.Now}
}

// Keys lists the routing keys the bus consumes.
func (b *Bus) Keys() []string {
	return []string{b.cfg.InboundKey, b.cfg.AssignmentsKey}
}

// HandleDelivery processes one delivery body received on routingKey.
func (b *Bus) HandleDelivery(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case b.cfg.InboundKey:
		var env Envelope[InboundV1]
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return b.inbound(ctx, env)
	case b.cfg.AssignmentsKey:
		var env Envelope[AssignmentV1]
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return b.assignment(ctx, env.Data)
	}
	return fmt.Errorf("%w: %s", ErrUnknownKey, routingKey)
}

func (b *Bus) inbound(ctx context.Context, env Envelope[InboundV1]) error {
	in := env.Data
	userID := in.Conversation.ProviderChatID
	if userID == "" {
		return fmt.Errorf("%w: inbound without provider_chat_id", ErrMalformed)
	}
	if in.Kind != "" && in.Kind != "text" && strings.TrimSpace(in.Text) == "" {
		logging.ChannelDebug("ignoring %s message from %s", in.Kind, userID)
		return nil
	}

	res := b.bot.Process(ctx, dispatch.Message{UserID: userID, Text: in.Text, CampaignRef: in.CampaignRef})
	if res.Outcome == nil || res.Outcome.Kind() == types.KindSilent {
		logging.ChannelDebug("%s: silent (%s)", userID, res.Handler)
		return nil
	}

	view := ViewOf(res.Outcome)
	out := OutboundV1{
		Provider:     in.Provider,
		Conversation: in.Conversation,
		OutboundID:   uuid.NewString(),
		Kind:         string(view.Type),
		Text:         view.Content,
		ImageURL:     view.ImageURL,
		AtHub:        b.now(),
	}
	correlation := env.Meta.ID
	if env.Meta.CorrelationID != nil {
		correlation = *env.Meta.CorrelationID
	}
	p := producer
	reply := Envelope[OutboundV1]{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: &correlation,
			Producer:      &p,
			Time:          b.now(),
			Type:          EventOutbound,
		},
		Data: out,
	}
	if err := b.pub.Publish(ctx, b.cfg.OutboundKey, reply); err != nil {
		// the turn is already recorded; keep the text so it can be resent
		logging.ChannelError("reply lost: user=%s correlation=%s outbound=%s type=%s text=%q: %v",
			userID, correlation, out.OutboundID, view.Type, view.Content, err)
		return fmt.Errorf("publish reply to %s: %w", userID, err)
	}
	logging.Channel("%s: replied %s via %s", userID, view.Type, res.Handler)
	return nil
}

func (b *Bus) assignment(ctx context.Context, a AssignmentV1) error {
	userID := a.Conversation.ProviderChatID
	if userID == "" {
		return fmt.Errorf("%w: assignment without provider_chat_id", ErrMalformed)
	}
	var err error
	if a.Released {
		_, err = b.bot.Release(ctx, userID)
	} else {
		_, err = b.bot.TakeOver(ctx, userID)
	}
	if err != nil {
		return err
	}
	logging.Channel("%s: assignment (manager %d, released=%v)", userID, a.ManagerID, a.Released)
	return nil
}
