package dispatch

import (
	"context"
	"time"

	"shadebot/internal/logging"
	"shadebot/internal/perception"
	"shadebot/internal/types"
)

// Turn is one inbound message on its way through the chain. Handlers read
// the record snapshot and queue changes with Update; the dispatcher persists
// the accumulated patch once, after the chain.
type Turn struct {
	RequestID  string
	UserID     string
	Original   string
	Normalized string
	Persona    string
	Now        time.Time

	// Record is a private working copy. Update applies patches to it so later
	// handlers see earlier decisions.
	Record *types.ConversationRecord
	Patch  types.RecordPatch

	// Extracted holds only what this message said; Spec is the record's spec
	// merged with it.
	Extracted types.ProductSpec
	Spec      types.ProductSpec

	// prefix is prepended to the final reply (a greeting folded into a
	// substantive answer).
	prefix string

	// unintelligible and oversized mark turns answered by the edge-case
	// clarification and the oversized branch; any other reply breaks the
	// consecutive run those counters track.
	unintelligible bool
	oversized      bool

	fast     *perception.Match
	fastOK   bool
	fastText string
	fastFn   func(string) (perception.Match, bool)

	analysis  *perception.Analysis
	analyzeFn func(context.Context, *Turn) perception.Analysis
}

// Update queues p for persistence and applies it to the working record.
func (t *Turn) Update(p types.RecordPatch) {
	if p.IsZero() {
		return
	}
	t.Patch.Merge(p)
	t.Record.Apply(p)
	if p.ProductSpecs != nil {
		t.Spec = types.MergeSpecs(t.Spec, *p.ProductSpecs)
	}
}

// Fast returns the memoized fast-tier match for the current text.
func (t *Turn) Fast() (perception.Match, bool) {
	if t.fast == nil {
		m, ok := t.fastFn(t.textForFast())
		t.fast, t.fastOK = &m, ok
	}
	return *t.fast, t.fastOK
}

// Refocus points the fast tier at a sub-phrase of the message, used after a
// leading greeting has been answered.
func (t *Turn) Refocus(text string) {
	t.fastText = text
	t.fast = nil
}

func (t *Turn) textForFast() string {
	if t.fastText != "" {
		return t.fastText
	}
	return t.Normalized
}

// Analysis runs the probabilistic tier once per turn.
func (t *Turn) Analysis(ctx context.Context) perception.Analysis {
	if t.analysis == nil {
		a := t.analyzeFn(ctx, t)
		t.analysis = &a
	}
	return *t.analysis
}

// Prefix sets text to prepend to the final reply.
func (t *Turn) Prefix(text string) {
	t.prefix = text
}

func (t *Turn) audit() *logging.AuditLogger {
	return logging.Audit(t.UserID, t.RequestID)
}
