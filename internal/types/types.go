// Package types provides shared type definitions used across shadebot packages.
// This package exists to break import cycles between the dispatcher, the
// escalation machine, the extractors and the store adapters.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// State is the persisted lifecycle state of a conversation record.
type State string

const (
	StateNew         State = "new"
	StateActive      State = "active"
	StateClosed      State = "closed"
	StateNeedsHuman  State = "needs_human"
	StateHumanActive State = "human_active"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateActive, StateClosed, StateNeedsHuman, StateHumanActive:
		return true
	}
	return false
}

// BotActive reports whether the bot owns the conversation (new or active).
func (s State) BotActive() bool {
	return s == StateNew || s == StateActive || s == ""
}

// ConversationRecord is the per-user conversation state, keyed by an opaque user ID.
type ConversationRecord struct {
	UserID string `json:"user_id"`
	State  State  `json:"state"`

	LastIntent          string `json:"last_intent,omitempty"`
	Greeted             bool   `json:"greeted"`
	ClarificationCount  int    `json:"clarification_count"`
	UnknownCount        int    `json:"unknown_count"`
	UnintelligibleCount int    `json:"unintelligible_count"`

	// OversizeKey is the exact dimension of the last oversized request and
	// OversizeCount how many consecutive times it was asked for.
	OversizeKey   string `json:"oversize_key,omitempty"`
	OversizeCount int    `json:"oversize_count"`

	ProductSpecs ProductSpec `json:"product_specs"`
	CustomerType string      `json:"customer_type,omitempty"`
	CampaignRef  string      `json:"campaign_ref,omitempty"`

	HandoffRequested bool   `json:"handoff_requested"`
	HandoffReason    string `json:"handoff_reason,omitempty"`

	LastBotResponse string     `json:"last_bot_response,omitempty"`
	AgentTookOverAt *time.Time `json:"agent_took_over_at,omitempty"`

	// PersonaName is the display name picked when the record was created.
	PersonaName string `json:"persona_name,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// NewRecord returns a default record for a user seen for the first time.
func NewRecord(userID, persona string, now time.Time) *ConversationRecord {
	return &ConversationRecord{
		UserID:         userID,
		State:          StateNew,
		PersonaName:    persona,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Clone returns a deep copy of the record.
func (r *ConversationRecord) Clone() *ConversationRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ProductSpecs = r.ProductSpecs.Clone()
	if r.AgentTookOverAt != nil {
		t := *r.AgentTookOverAt
		out.AgentTookOverAt = &t
	}
	return &out
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

// RecordPatch is a field-level partial update of a ConversationRecord.
// A nil field means "leave untouched".
type RecordPatch struct {
	State               *State       `json:"state,omitempty"`
	LastIntent          *string      `json:"last_intent,omitempty"`
	Greeted             *bool        `json:"greeted,omitempty"`
	ClarificationCount  *int         `json:"clarification_count,omitempty"`
	UnknownCount        *int         `json:"unknown_count,omitempty"`
	UnintelligibleCount *int         `json:"unintelligible_count,omitempty"`
	OversizeKey         *string      `json:"oversize_key,omitempty"`
	OversizeCount       *int         `json:"oversize_count,omitempty"`
	ProductSpecs        *ProductSpec `json:"product_specs,omitempty"`
	CustomerType        *string      `json:"customer_type,omitempty"`
	CampaignRef         *string      `json:"campaign_ref,omitempty"`
	HandoffRequested    *bool        `json:"handoff_requested,omitempty"`
	HandoffReason       *string      `json:"handoff_reason,omitempty"`
	LastBotResponse     *string      `json:"last_bot_response,omitempty"`
	PersonaName         *string      `json:"persona_name,omitempty"`

	// AgentTookOverAt is set when SetTakeover is true; a true SetTakeover with a
	// nil timestamp clears it.
	AgentTookOverAt *time.Time `json:"agent_took_over_at,omitempty"`
	SetTakeover     bool       `json:"set_takeover,omitempty"`
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Merge folds other into p; fields set in other win.
// Product specs are merged monotonically.
func (p *RecordPatch) Merge(other RecordPatch) {
	if other.State != nil {
		p.State = other.State
	}
	if other.LastIntent != nil {
		p.LastIntent = other.LastIntent
	}
	if other.Greeted != nil {
		p.Greeted = other.Greeted
	}
	if other.ClarificationCount != nil {
		p.ClarificationCount = other.ClarificationCount
	}
	if other.UnknownCount != nil {
		p.UnknownCount = other.UnknownCount
	}
	if other.UnintelligibleCount != nil {
		p.UnintelligibleCount = other.UnintelligibleCount
	}
	if other.OversizeKey != nil {
		p.OversizeKey = other.OversizeKey
	}
	if other.OversizeCount != nil {
		p.OversizeCount = other.OversizeCount
	}
	if other.ProductSpecs != nil {
		if p.ProductSpecs == nil {
			s := other.ProductSpecs.Clone()
			p.ProductSpecs = &s
		} else {
			merged := MergeSpecs(*p.ProductSpecs, *other.ProductSpecs)
			p.ProductSpecs = &merged
		}
	}
	if other.CustomerType != nil {
		p.CustomerType = other.CustomerType
	}
	if other.CampaignRef != nil {
		p.CampaignRef = other.CampaignRef
	}
	if other.HandoffRequested != nil {
		p.HandoffRequested = other.HandoffRequested
	}
	if other.HandoffReason != nil {
		p.HandoffReason = other.HandoffReason
	}
	if other.LastBotResponse != nil {
		p.LastBotResponse = other.LastBotResponse
	}
	if other.PersonaName != nil {
		p.PersonaName = other.PersonaName
	}
	if other.SetTakeover {
		p.SetTakeover = true
		p.AgentTookOverAt = other.AgentTookOverAt
	}
}

// IsZero reports whether the patch changes nothing.
func (p RecordPatch) IsZero() bool {
	return p.State == nil && p.LastIntent == nil && p.Greeted == nil &&
		p.ClarificationCount == nil && p.UnknownCount == nil && p.UnintelligibleCount == nil &&
		p.OversizeKey == nil && p.OversizeCount == nil && p.ProductSpecs == nil &&
		p.CustomerType == nil && p.CampaignRef == nil && p.HandoffRequested == nil &&
		p.HandoffReason == nil && p.LastBotResponse == nil && p.PersonaName == nil &&
		!p.SetTakeover
}

// Apply writes the patch onto r in place.
func (r *ConversationRecord) Apply(p RecordPatch) {
	if p.State != nil {
		r.State = *p.State
	}
	if p.LastIntent != nil {
		r.LastIntent = *p.LastIntent
	}
	if p.Greeted != nil {
		r.Greeted = *p.Greeted
	}
	if p.ClarificationCount != nil {
		r.ClarificationCount = *p.ClarificationCount
	}
	if p.UnknownCount != nil {
		r.UnknownCount = *p.UnknownCount
	}
	if p.UnintelligibleCount != nil {
		r.UnintelligibleCount = *p.UnintelligibleCount
	}
	if p.OversizeKey != nil {
		r.OversizeKey = *p.OversizeKey
	}
	if p.OversizeCount != nil {
		r.OversizeCount = *p.OversizeCount
	}
	if p.ProductSpecs != nil {
		r.ProductSpecs = MergeSpecs(r.ProductSpecs, *p.ProductSpecs)
	}
	if p.CustomerType != nil {
		r.CustomerType = *p.CustomerType
	}
	if p.CampaignRef != nil {
		r.CampaignRef = *p.CampaignRef
	}
	if p.HandoffRequested != nil {
		r.HandoffRequested = *p.HandoffRequested
	}
	if p.HandoffReason != nil {
		r.HandoffReason = *p.HandoffReason
	}
	if p.LastBotResponse != nil {
		r.LastBotResponse = *p.LastBotResponse
	}
	if p.PersonaName != nil {
		r.PersonaName = *p.PersonaName
	}
	if p.SetTakeover {
		if p.AgentTookOverAt == nil {
			r.AgentTookOverAt = nil
		} else {
			t := *p.AgentTookOverAt
			r.AgentTookOverAt = &t
		}
	}
}

// =============================================================================
// PRODUCT SPECS
// =============================================================================

// ProductType enumerates the product variants the store sells.
type ProductType string

const (
	ProductUnknown       ProductType = ""
	ProductRoll          ProductType = "roll"
	ProductConfeccionada ProductType = "confeccionada"
	ProductGroundCover   ProductType = "ground_cover"
	ProductEdging        ProductType = "edging"
	ProductAccessory     ProductType = "accessory"
)

// Label returns the customer-facing Spanish name of the product type.
func (p ProductType) Label() string {
	switch p {
	case ProductRoll:
		return "rollo de malla sombra"
	case ProductConfeccionada:
		return "malla sombra confeccionada"
	case ProductGroundCover:
		return "malla antimaleza"
	case ProductEdging:
		return "borde separador"
	case ProductAccessory:
		return "accesorios"
	default:
		return "malla sombra"
	}
}

// ProductSpec is the cumulative product configuration of a conversation.
// Optional numeric fields are pointers so absence is distinguishable from zero.
type ProductSpec struct {
	ProductType  ProductType `json:"product_type,omitempty"`
	Size         string      `json:"size,omitempty"`
	Width        *float64    `json:"width,omitempty"`
	Height       *float64    `json:"height,omitempty"`
	Length       *float64    `json:"length,omitempty"`
	Percentage   *int        `json:"percentage,omitempty"`
	Color        string      `json:"color,omitempty"`
	Quantity     *int        `json:"quantity,omitempty"`
	CustomerName string      `json:"customer_name,omitempty"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
}

// IsEmpty reports whether no field is set.
func (s ProductSpec) IsEmpty() bool {
	return s.ProductType == "" && s.Size == "" && s.Width == nil && s.Height == nil &&
		s.Length == nil && s.Percentage == nil && s.Color == "" && s.Quantity == nil &&
		s.CustomerName == ""
}

// Clone returns a deep copy.
func (s ProductSpec) Clone() ProductSpec {
	out := s
	out.Width = clonePtr(s.Width)
	out.Height = clonePtr(s.Height)
	out.Length = clonePtr(s.Length)
	out.Percentage = clonePtr(s.Percentage)
	out.Quantity = clonePtr(s.Quantity)
	out.UpdatedAt = clonePtr(s.UpdatedAt)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MergeSpecs merges update into base. New non-empty values override old ones;
// fields absent from update are never cleared.
func MergeSpecs(base, update ProductSpec) ProductSpec {
	out := base.Clone()
	if update.ProductType != "" {
		out.ProductType = update.ProductType
	}
	if update.Size != "" {
		out.Size = update.Size
	}
	if update.Width != nil {
		out.Width = clonePtr(update.Width)
	}
	if update.Height != nil {
		out.Height = clonePtr(update.Height)
	}
	if update.Length != nil {
		out.Length = clonePtr(update.Length)
	}
	if update.Percentage != nil {
		out.Percentage = clonePtr(update.Percentage)
	}
	if update.Color != "" {
		out.Color = update.Color
	}
	if update.Quantity != nil {
		out.Quantity = clonePtr(update.Quantity)
	}
	if update.CustomerName != "" {
		out.CustomerName = update.CustomerName
	}
	if update.UpdatedAt != nil {
		out.UpdatedAt = clonePtr(update.UpdatedAt)
	}
	return out
}

// Summary renders the known fields for prompts and logs.
func (s ProductSpec) Summary() string {
	var parts []string
	if s.ProductType != "" {
		parts = append(parts, "tipo="+string(s.ProductType))
	}
	if s.Size != "" {
		parts = append(parts, "medida="+s.Size)
	}
	if s.Width != nil && s.Size == "" {
		parts = append(parts, fmt.Sprintf("ancho=%g", *s.Width))
	}
	if s.Length != nil {
		parts = append(parts, fmt.Sprintf("largo=%g", *s.Length))
	}
	if s.Percentage != nil {
		parts = append(parts, fmt.Sprintf("porcentaje=%d%%", *s.Percentage))
	}
	if s.Color != "" {
		parts = append(parts, "color="+s.Color)
	}
	if s.Quantity != nil {
		parts = append(parts, fmt.Sprintf("cantidad=%d", *s.Quantity))
	}
	if s.CustomerName != "" {
		parts = append(parts, "nombre="+s.CustomerName)
	}
	return strings.Join(parts, ", ")
}

// =============================================================================
// INTENT DEFINITIONS
// =============================================================================

// HandlerType says how a classified intent is answered.
type HandlerType string

const (
	HandlerPattern      HandlerType = "pattern"
	HandlerFlow         HandlerType = "flow"
	HandlerHumanHandoff HandlerType = "human_handoff"
	HandlerAIGenerate   HandlerType = "ai_generate"
)

// IntentDefinition is an externally authored intent. Read-only to the core.
type IntentDefinition struct {
	Key         string      `yaml:"key" json:"key"`
	Description string      `yaml:"description" json:"description"`
	Keywords    []string    `yaml:"keywords" json:"keywords,omitempty"`
	Priority    int         `yaml:"priority" json:"priority"`
	HandlerType HandlerType `yaml:"handler_type" json:"handler_type"`
	Response    string      `yaml:"response,omitempty" json:"response,omitempty"`
	FlowRef     string      `yaml:"flow_ref,omitempty" json:"flow_ref,omitempty"`
}

// =============================================================================
// CATALOG
// =============================================================================

// CatalogSize is one fixed size offered for sale.
type CatalogSize struct {
	Width    float64 `yaml:"width" json:"width"`
	Height   float64 `yaml:"height" json:"height"`
	Area     float64 `yaml:"area,omitempty" json:"area"`
	Price    float64 `yaml:"price" json:"price"`
	SizeStr  string  `yaml:"size,omitempty" json:"size"`
	ImageURL string  `yaml:"image_url,omitempty" json:"image_url,omitempty"`
}

// Normalize fills Area and SizeStr when the source left them blank.
func (c CatalogSize) Normalize() CatalogSize {
	if c.Area == 0 {
		c.Area = c.Width * c.Height
	}
	if c.SizeStr == "" {
		c.SizeStr = fmt.Sprintf("%gx%g", c.Width, c.Height)
	}
	return c
}
