// Package escalation decides when the bot must stay silent or hand the
// conversation to a human.
//
// The machine is pure: every operation reads a record snapshot and returns a
// RecordPatch describing the transition. Persisting the patch is the caller's
// job.
package escalation

import (
	"strings"
	"time"

	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// Reasons recorded in HandoffReason.
const (
	ReasonExplicitRequest = "explicit_request"
	ReasonFrustration     = "frustration"
	ReasonUnintelligible  = "unintelligible"
	ReasonComplex         = "complex"
	ReasonRepetition      = "repeated_response"
	ReasonOversize        = "oversize_repeat"
	ReasonClarification   = "unresolved_clarification"
)

// Thresholds are the tunable limits of the machine.
type Thresholds struct {
	EdgeCaseConfidence  float64
	HumanStaleness      time.Duration
	OversizeRepeatLimit int
	UnintelligibleLimit int
	ClarificationLimit  int
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EdgeCaseConfidence:  0.9,
		HumanStaleness:      2 * time.Hour,
		OversizeRepeatLimit: 3,
		UnintelligibleLimit: 2,
		ClarificationLimit:  2,
	}
}

// Machine evaluates escalation transitions.
type Machine struct {
	t Thresholds
}

// New returns a machine; zero thresholds fall back to the defaults.
func New(t Thresholds) *Machine {
	d := DefaultThresholds()
	if t.EdgeCaseConfidence <= 0 {
		t.EdgeCaseConfidence = d.EdgeCaseConfidence
	}
	if t.HumanStaleness <= 0 {
		t.HumanStaleness = d.HumanStaleness
	}
	if t.OversizeRepeatLimit <= 0 {
		t.OversizeRepeatLimit = d.OversizeRepeatLimit
	}
	if t.UnintelligibleLimit <= 0 {
		t.UnintelligibleLimit = d.UnintelligibleLimit
	}
	if t.ClarificationLimit <= 0 {
		t.ClarificationLimit = d.ClarificationLimit
	}
	return &Machine{t: t}
}

// Thresholds returns the effective limits.
func (m *Machine) Thresholds() Thresholds {
	return m.t
}

// =============================================================================
// GATE
// =============================================================================

// GateResult is the decision taken before any handler sees the message.
type GateResult struct {
	// Silence is true when the bot must not answer at all.
	Silence bool
	// Patch carries a resume or reopen transition, if any.
	Patch types.RecordPatch
	// Reason explains the decision for logs.
	Reason string
}

// Gate applies the state-based silence rules. isAck tells whether the
// message is a bare acknowledgment ("ok", "no", "va").
func (m *Machine) Gate(rec *types.ConversationRecord, isAck bool, now time.Time) GateResult {
	switch rec.State {
	case types.StateNeedsHuman:
		return GateResult{Silence: true, Reason: "needs_human"}

	case types.StateHumanActive:
		if rec.AgentTookOverAt != nil && now.Sub(*rec.AgentTookOverAt) < m.t.HumanStaleness {
			return GateResult{Silence: true, Reason: "human_active"}
		}
		logging.Escalation("human takeover for %s is stale, resuming bot", rec.UserID)
		return GateResult{Patch: m.resume(), Reason: "human_stale"}

	case types.StateClosed:
		if isAck {
			return GateResult{Silence: true, Reason: "closed_ack"}
		}
		return GateResult{
			Patch:  types.RecordPatch{State: types.Ptr(types.StateActive)},
			Reason: "reopened",
		}
	}
	return GateResult{}
}

func (m *Machine) resume() types.RecordPatch {
	return types.RecordPatch{
		State:            types.Ptr(types.StateActive),
		HandoffRequested: types.Ptr(false),
		HandoffReason:    types.Ptr(""),
		SetTakeover:      true,
	}
}

// IsSilenced reports whether rec currently suppresses bot replies.
func (m *Machine) IsSilenced(rec *types.ConversationRecord, now time.Time) bool {
	switch rec.State {
	case types.StateNeedsHuman:
		return true
	case types.StateHumanActive:
		return rec.AgentTookOverAt != nil && now.Sub(*rec.AgentTookOverAt) < m.t.HumanStaleness
	}
	return false
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Escalate moves the conversation to needs_human.
func (m *Machine) Escalate(reason string) types.RecordPatch {
	logging.Escalation("escalating: %s", reason)
	return types.RecordPatch{
		State:            types.Ptr(types.StateNeedsHuman),
		HandoffRequested: types.Ptr(true),
		HandoffReason:    types.Ptr(reason),
	}
}

// EdgeCase is the completion service's verdict on a message.
type EdgeCase struct {
	Unintelligible bool
	Complex        bool
	Confidence     float64
}

// EdgeAction is what the dispatcher should do after an edge-case verdict.
type EdgeAction int

const (
	EdgeNone EdgeAction = iota
	EdgeClarify
	EdgeEscalate
)

// OnEdgeCase applies an edge-case verdict. Verdicts below the confidence
// threshold are treated as normal.
func (m *Machine) OnEdgeCase(rec *types.ConversationRecord, ec EdgeCase) (EdgeAction, types.RecordPatch) {
	trusted := ec.Confidence > m.t.EdgeCaseConfidence
	switch {
	case trusted && ec.Complex:
		return EdgeEscalate, m.Escalate(ReasonComplex)

	case trusted && ec.Unintelligible:
		count := rec.UnintelligibleCount + 1
		if count >= m.t.UnintelligibleLimit {
			p := m.Escalate(ReasonUnintelligible)
			p.UnintelligibleCount = types.Ptr(0)
			return EdgeEscalate, p
		}
		logging.EscalationDebug("unintelligible message %d for %s", count, rec.UserID)
		return EdgeClarify, types.RecordPatch{UnintelligibleCount: types.Ptr(count)}

	default:
		if rec.UnintelligibleCount != 0 {
			return EdgeNone, types.RecordPatch{UnintelligibleCount: types.Ptr(0)}
		}
		return EdgeNone, types.RecordPatch{}
	}
}

// OnOversize records a request for an oversized dimension identified by key.
// The counter grows while the same key repeats consecutively; at the limit
// the conversation escalates and the counter resets to zero.
func (m *Machine) OnOversize(rec *types.ConversationRecord, key string) (bool, types.RecordPatch) {
	count := 1
	if rec.OversizeKey == key {
		count = rec.OversizeCount + 1
	}
	if count >= m.t.OversizeRepeatLimit {
		p := m.Escalate(ReasonOversize)
		p.OversizeKey = types.Ptr(key)
		p.OversizeCount = types.Ptr(0)
		return true, p
	}
	return false, types.RecordPatch{OversizeKey: types.Ptr(key), OversizeCount: types.Ptr(count)}
}

// ClearUnintelligible resets the unintelligible counter after a turn that was
// answered by anything other than the edge-case clarification.
func (m *Machine) ClearUnintelligible(rec *types.ConversationRecord) types.RecordPatch {
	if rec.UnintelligibleCount == 0 {
		return types.RecordPatch{}
	}
	return types.RecordPatch{UnintelligibleCount: types.Ptr(0)}
}

// ClearOversize resets the oversize counter after a non-oversized turn.
func (m *Machine) ClearOversize(rec *types.ConversationRecord) types.RecordPatch {
	if rec.OversizeKey == "" && rec.OversizeCount == 0 {
		return types.RecordPatch{}
	}
	return types.RecordPatch{OversizeKey: types.Ptr(""), OversizeCount: types.Ptr(0)}
}

// OnClarification counts a turn that had to ask a clarifying question. A
// second consecutive unresolved turn escalates.
func (m *Machine) OnClarification(rec *types.ConversationRecord) (bool, types.RecordPatch) {
	count := rec.ClarificationCount + 1
	if count >= m.t.ClarificationLimit {
		p := m.Escalate(ReasonClarification)
		p.ClarificationCount = types.Ptr(0)
		return true, p
	}
	return false, types.RecordPatch{ClarificationCount: types.Ptr(count)}
}

// ResolvedClarification clears the clarification counter.
func (m *Machine) ResolvedClarification(rec *types.ConversationRecord) types.RecordPatch {
	if rec.ClarificationCount == 0 {
		return types.RecordPatch{}
	}
	return types.RecordPatch{ClarificationCount: types.Ptr(0)}
}

// IsRepetition reports whether response repeats the last bot response.
func IsRepetition(rec *types.ConversationRecord, response string) bool {
	r := strings.TrimSpace(response)
	return r != "" && r == strings.TrimSpace(rec.LastBotResponse)
}

// OnBotResponse records an outgoing response, escalating when it repeats the
// previous one verbatim.
func (m *Machine) OnBotResponse(rec *types.ConversationRecord, response string) (bool, types.RecordPatch) {
	if IsRepetition(rec, response) {
		return true, m.Escalate(ReasonRepetition)
	}
	return false, types.RecordPatch{LastBotResponse: types.Ptr(response)}
}

// OnFarewell closes the conversation.
func (m *Machine) OnFarewell() types.RecordPatch {
	return types.RecordPatch{State: types.Ptr(types.StateClosed)}
}

// Release is the external action that hands the conversation back to the bot.
func (m *Machine) Release() types.RecordPatch {
	p := m.resume()
	p.UnintelligibleCount = types.Ptr(0)
	p.ClarificationCount = types.Ptr(0)
	p.OversizeCount = types.Ptr(0)
	p.OversizeKey = types.Ptr("")
	return p
}

// TakeOver is the external action that marks a human agent as active.
func (m *Machine) TakeOver(now time.Time) types.RecordPatch {
	return types.RecordPatch{
		State:           types.Ptr(types.StateHumanActive),
		SetTakeover:     true,
		AgentTookOverAt: &now,
	}
}
