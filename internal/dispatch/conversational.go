package dispatch

import (
	"context"
	"strings"
	"unicode"

	"shadebot/internal/campaign"
	"shadebot/internal/escalation"
	"shadebot/internal/logging"
	"shadebot/internal/perception"
	"shadebot/internal/types"
)

// DefaultChain returns the handlers in priority order.
func (d *Dispatcher) DefaultChain() []Handler {
	return []Handler{
		HandlerFunc("gate", d.gate),
		HandlerFunc("opt_out", d.optOut),
		HandlerFunc("handoff", d.handoff),
		HandlerFunc("frustration", d.frustration),
		HandlerFunc("acknowledgment", d.acknowledgment),
		HandlerFunc("greeting", d.greeting),
		HandlerFunc("thanks_farewell", d.thanksFarewell),
		HandlerFunc("deferral", d.deferral),
		HandlerFunc("campaign", d.campaign),
		HandlerFunc("spec_dimension", d.specDimension),
		HandlerFunc("intent", d.intent),
		HandlerFunc("catalog_overview", d.catalogOverview),
		HandlerFunc("roll_query", d.rollQuery),
		HandlerFunc("cross_sell", d.crossSell),
		HandlerFunc("family_lookup", d.familyLookup),
		HandlerFunc("product_search", d.productSearch),
		HandlerFunc("multi_size", d.multiSize),
		HandlerFunc("generative", d.generative),
	}
}

// gate applies the escalation machine's state rules before anything else.
func (d *Dispatcher) gate(_ context.Context, t *Turn) (types.Outcome, bool) {
	g := d.opts.Machine.Gate(t.Record, perception.IsAcknowledgment(t.Normalized), t.Now)
	t.Update(g.Patch)
	if g.Silence {
		logging.DispatchDebug("%s silenced: %s", t.UserID, g.Reason)
		return types.Silent{}, true
	}
	if g.Reason != "" {
		logging.Dispatch("%s gate: %s", t.UserID, g.Reason)
	}
	return nil, false
}

func (d *Dispatcher) fastIs(t *Turn, intent string) (perception.Match, bool) {
	m, ok := t.Fast()
	if !ok || m.Intent != intent {
		return perception.Match{}, false
	}
	return m, true
}

func (d *Dispatcher) optOut(_ context.Context, t *Turn) (types.Outcome, bool) {
	if _, ok := d.fastIs(t, perception.IntentOptOut); !ok {
		return nil, false
	}
	p := d.opts.Machine.OnFarewell()
	p.LastIntent = types.Ptr(perception.IntentOptOut)
	t.Update(p)
	return types.Text{Content: copyOptOut}, true
}

func (d *Dispatcher) handoff(_ context.Context, t *Turn) (types.Outcome, bool) {
	if _, ok := d.fastIs(t, perception.IntentHandoff); !ok {
		return nil, false
	}
	t.Update(d.opts.Machine.Escalate(escalation.ReasonExplicitRequest))
	t.Update(types.RecordPatch{LastIntent: types.Ptr(perception.IntentHandoff)})
	return types.Text{Content: copyHandoff}, true
}

func (d *Dispatcher) frustration(_ context.Context, t *Turn) (types.Outcome, bool) {
	if _, ok := d.fastIs(t, perception.IntentFrustration); !ok {
		return nil, false
	}
	t.Update(d.opts.Machine.Escalate(escalation.ReasonFrustration))
	t.Update(types.RecordPatch{LastIntent: types.Ptr(perception.IntentFrustration)})
	return types.Text{Content: copyFrustration}, true
}

var negatives = map[string]bool{"no": true, "nop": true, "nel": true}

// acknowledgment answers bare "ok"/"si"/"no". A yes right after the bot
// offered an advisor for an oversized request is taken as acceptance.
func (d *Dispatcher) acknowledgment(_ context.Context, t *Turn) (types.Outcome, bool) {
	m, ok := d.fastIs(t, perception.IntentAcknowledgment)
	if !ok {
		return nil, false
	}
	switch {
	case t.Record.LastIntent == intentOversize && !negatives[m.Phrase]:
		t.Update(d.opts.Machine.Escalate(escalation.ReasonExplicitRequest))
		t.Update(types.RecordPatch{LastIntent: types.Ptr(perception.IntentHandoff)})
		return types.Text{Content: copyOversizeYes}, true

	case t.Record.LastIntent == perception.IntentAcknowledgment:
		// the customer is just closing the exchange; answering would loop
		return types.Silent{}, true
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(perception.IntentAcknowledgment)})
	return types.Text{Content: copyAck}, true
}

// greeting answers a bare greeting. A greeting followed by a question is
// folded into the answer to that question.
func (d *Dispatcher) greeting(_ context.Context, t *Turn) (types.Outcome, bool) {
	if _, ok := d.fastIs(t, perception.IntentGreeting); !ok {
		return nil, false
	}
	first := !t.Record.Greeted
	t.Update(types.RecordPatch{Greeted: types.Ptr(true)})

	if tail := perception.StripGreeting(t.Normalized); tail != "" {
		if first {
			t.Prefix("¡Hola! Soy " + t.Persona + ".")
		}
		t.Refocus(tail)
		return nil, false
	}

	t.Update(types.RecordPatch{LastIntent: types.Ptr(perception.IntentGreeting)})
	if first {
		return types.Text{Content: greetingFor(t.Persona, d.opts.StoreName)}, true
	}
	return types.Text{Content: copyGreetingAgain}, true
}

// thanksFarewell closes the conversation on a genuine goodbye. The matchers
// only fire when the whole message is thanks or farewell phrasing, so an
// embedded product request never gets here.
func (d *Dispatcher) thanksFarewell(_ context.Context, t *Turn) (types.Outcome, bool) {
	m, ok := t.Fast()
	if !ok || (m.Intent != perception.IntentThanks && m.Intent != perception.IntentFarewell) {
		return nil, false
	}
	p := d.opts.Machine.OnFarewell()
	p.LastIntent = types.Ptr(m.Intent)
	t.Update(p)
	if m.Intent == perception.IntentThanks {
		return types.Text{Content: copyThanks}, true
	}
	return types.Text{Content: copyFarewell}, true
}

func (d *Dispatcher) deferral(_ context.Context, t *Turn) (types.Outcome, bool) {
	if _, ok := d.fastIs(t, perception.IntentDeferral); !ok {
		return nil, false
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(perception.IntentDeferral)})
	return types.Text{Content: copyDeferral}, true
}

// campaign hands the turn to the flow registered for the conversation's
// campaign reference. A reference with no flow falls through.
func (d *Dispatcher) campaign(ctx context.Context, t *Turn) (types.Outcome, bool) {
	ref := t.Record.CampaignRef
	if ref == "" {
		return nil, false
	}
	flow, ok := d.opts.Campaigns.Lookup(ref)
	if !ok {
		logging.CampaignDebug("no flow for campaign %q, falling through", ref)
		return nil, false
	}
	return d.runFlow(ctx, t, flow)
}

func (d *Dispatcher) runFlow(ctx context.Context, t *Turn, flow campaign.Flow) (types.Outcome, bool) {
	reply, ok := flow.TryHandle(ctx, campaign.Request{
		UserID:     t.UserID,
		Message:    t.Original,
		Normalized: t.Normalized,
		Record:     t.Record,
		Spec:       t.Spec,
		Persona:    t.Persona,
	})
	if !ok || reply.Outcome == nil {
		return nil, false
	}
	t.Update(reply.Patch)
	logging.Campaign("flow %s answered %s", flow.Name(), t.UserID)
	return reply.Outcome, true
}

// words splits text on anything that is not a letter or digit.
func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasWord(text string, want ...string) bool {
	for _, w := range words(text) {
		for _, x := range want {
			if w == x {
				return true
			}
		}
	}
	return false
}
