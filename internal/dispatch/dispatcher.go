// Package dispatch runs every inbound message through a strictly ordered
// chain of handlers and returns exactly one Outcome.
//
// Each handler either answers (Outcome, true) or passes (nil, false). Silent
// is an answer: it stops the chain just like a reply does. Priority is the
// order of the handler list, nothing else.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shadebot/internal/campaign"
	"shadebot/internal/catalog"
	"shadebot/internal/dimension"
	"shadebot/internal/escalation"
	"shadebot/internal/logging"
	"shadebot/internal/normalize"
	"shadebot/internal/perception"
	"shadebot/internal/specs"
	"shadebot/internal/store"
	"shadebot/internal/types"
	"shadebot/internal/usage"
)

// ErrListUnsupported is returned by List when the store cannot list records.
var ErrListUnsupported = errors.New("dispatch: store does not support listing")

// Handler is one link of the chain.
type Handler interface {
	Name() string
	TryHandle(ctx context.Context, t *Turn) (types.Outcome, bool)
}

type handlerFunc struct {
	name string
	fn   func(context.Context, *Turn) (types.Outcome, bool)
}

func (h handlerFunc) Name() string { return h.name }

func (h handlerFunc) TryHandle(ctx context.Context, t *Turn) (types.Outcome, bool) {
	return h.fn(ctx, t)
}

// HandlerFunc wraps fn as a named Handler.
func HandlerFunc(name string, fn func(context.Context, *Turn) (types.Outcome, bool)) Handler {
	return handlerFunc{name: name, fn: fn}
}

// Message is an inbound customer message.
type Message struct {
	UserID string
	Text   string
	// CampaignRef is set when the message arrived through a campaign entry
	// point (ad click, landing page).
	CampaignRef string
}

// Result describes a finished turn.
type Result struct {
	Outcome   types.Outcome
	Handler   string
	RequestID string
	State     types.State
	Duration  time.Duration
}

// Options wires the dispatcher's collaborators.
type Options struct {
	Store     store.Store
	Machine   *escalation.Machine
	Resolver  *perception.Resolver
	Service   perception.CompletionService
	Catalog   catalog.Source
	Campaigns *campaign.Registry

	StoreName string
	Apology   string
	// DefaultPersona names the bot when the store is unavailable.
	DefaultPersona string
	// HistoryTurns is how many past turns the generative fallback sees.
	HistoryTurns int

	Now func() time.Time
}

// Dispatcher composes the chain.
type Dispatcher struct {
	opts     Options
	chain    []Handler
	sizes    *dimension.Resolver
	families []catalog.Family
}

// New validates opts, loads the panel sizes and builds the default chain.
func New(ctx context.Context, opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dispatch: store is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("dispatch: catalog is required")
	}
	if opts.Machine == nil {
		opts.Machine = escalation.New(escalation.DefaultThresholds())
	}
	if opts.Service == nil {
		opts.Service = perception.NoopService{}
	}
	if opts.Resolver == nil {
		opts.Resolver = perception.NewResolver(nil, opts.Service, perception.DefaultConfidence)
	}
	if opts.Campaigns == nil {
		opts.Campaigns = campaign.NewRegistry()
	}
	if opts.Apology == "" {
		opts.Apology = defaultApology
	}
	if opts.DefaultPersona == "" {
		opts.DefaultPersona = "Sofía"
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sizes, err := opts.Catalog.Sizes(ctx, types.ProductConfeccionada)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load sizes: %w", err)
	}
	families, err := opts.Catalog.Families(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load families: %w", err)
	}

	d := &Dispatcher{
		opts:     opts,
		sizes:    dimension.NewResolver(sizes),
		families: families,
	}
	d.chain = d.DefaultChain()
	logging.Dispatch("dispatcher ready: %d handlers, %d sizes, %d campaign flows",
		len(d.chain), len(sizes), len(opts.Campaigns.Refs()))
	return d, nil
}

// Use replaces the chain.
func (d *Dispatcher) Use(handlers ...Handler) {
	d.chain = handlers
}

// Chain lists the handler names in evaluation order.
func (d *Dispatcher) Chain() []string {
	out := make([]string, len(d.chain))
	for i, h := range d.chain {
		out[i] = h.Name()
	}
	return out
}

// Handle processes one message and returns its outcome.
func (d *Dispatcher) Handle(ctx context.Context, userID, text string) types.Outcome {
	return d.Process(ctx, Message{UserID: userID, Text: text}).Outcome
}

// Process runs one turn end to end. It never fails: store and completion
// errors degrade, panics become the apology.
func (d *Dispatcher) Process(ctx context.Context, msg Message) (res Result) {
	start := time.Now()
	res.RequestID = uuid.NewString()
	audit := logging.Audit(msg.UserID, res.RequestID)
	log := logging.WithRequestID(logging.CategoryDispatch, res.RequestID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("turn panicked: %v", r)
			audit.HandlerPanic("dispatcher", r)
			res.Outcome = types.Text{Content: d.opts.Apology}
			res.Handler = "panic"
		}
	}()

	now := d.opts.Now()
	rec, err := d.opts.Store.Load(ctx, msg.UserID)
	if err != nil {
		log.Warn("store load failed for %s, using default record: %v", msg.UserID, err)
		audit.StoreFallback(err)
		rec = types.NewRecord(msg.UserID, d.opts.DefaultPersona, now)
	}
	prev := rec.State
	audit.TurnStart(string(prev))

	t := d.newTurn(msg, rec, now)
	t.RequestID = res.RequestID
	if msg.CampaignRef != "" && msg.CampaignRef != rec.CampaignRef {
		t.Update(types.RecordPatch{CampaignRef: types.Ptr(msg.CampaignRef)})
	}

	out, handler := d.run(ctx, t, audit)
	out = d.finish(t, out, handler)

	d.persist(ctx, t, out, handler, log, audit)

	if t.Record.State != prev {
		audit.StateChange(string(prev), string(t.Record.State))
		if t.Record.State == types.StateNeedsHuman {
			audit.Escalated(t.Record.HandoffReason)
			usage.ObserveEscalation(t.Record.HandoffReason)
		}
	}

	res.Outcome = out
	res.Handler = handler
	res.State = t.Record.State
	res.Duration = time.Since(start)
	usage.ObserveOutcome(handler, string(out.Kind()))
	audit.TurnEnd(handler, string(out.Kind()), res.Duration)
	log.Debug("%s -> %s via %s in %v", msg.UserID, out.Kind(), handler, res.Duration)
	return res
}

func (d *Dispatcher) newTurn(msg Message, rec *types.ConversationRecord, now time.Time) *Turn {
	normalized := normalize.Normalize(msg.Text)
	extracted := specs.Extract(normalized, msg.Text)
	persona := rec.PersonaName
	if persona == "" {
		persona = d.opts.DefaultPersona
	}
	t := &Turn{
		UserID:     msg.UserID,
		Original:   msg.Text,
		Normalized: normalized,
		Persona:    persona,
		Now:        now,
		Record:     rec.Clone(),
		Extracted:  extracted,
		Spec:       specs.Merge(rec.ProductSpecs, extracted),
	}
	t.fastFn = d.opts.Resolver.Fast
	t.analyzeFn = func(ctx context.Context, t *Turn) perception.Analysis {
		return d.opts.Resolver.Analyze(ctx, t.Original, t.Normalized, perception.ClassifyContext{
			PreviousIntent: t.Record.LastIntent,
			CampaignRef:    t.Record.CampaignRef,
		})
	}
	return t
}

// run walks the chain; the first handler that answers wins.
func (d *Dispatcher) run(ctx context.Context, t *Turn, audit *logging.AuditLogger) (types.Outcome, string) {
	for _, h := range d.chain {
		out, ok := d.try(ctx, h, t, audit)
		if !ok {
			continue
		}
		if out == nil {
			logging.DispatchError("handler %s answered with a nil outcome", h.Name())
			return types.Text{Content: d.opts.Apology}, h.Name()
		}
		return out, h.Name()
	}
	logging.DispatchError("no handler answered for %s", t.UserID)
	return types.Text{Content: d.opts.Apology}, "none"
}

func (d *Dispatcher) try(ctx context.Context, h Handler, t *Turn, audit *logging.AuditLogger) (out types.Outcome, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.DispatchError("handler %s panicked: %v", h.Name(), r)
			audit.HandlerPanic(h.Name(), r)
			out, ok = types.Text{Content: d.opts.Apology}, true
		}
	}()
	return h.TryHandle(usage.WithHandler(ctx, h.Name()), t)
}

// finish applies the cross-cutting rules every reply goes through: the
// greeting prefix, spec persistence, new->active, the consecutive-run resets
// and the repetition check.
func (d *Dispatcher) finish(t *Turn, out types.Outcome, handler string) types.Outcome {
	if handler == "gate" {
		return out
	}
	if !t.Extracted.IsEmpty() {
		spec := t.Extracted.Clone()
		spec.UpdatedAt = types.Ptr(t.Now)
		t.Update(types.RecordPatch{ProductSpecs: &spec})
	}

	text := types.OutcomeText(out)
	if text == "" {
		return out
	}
	if t.prefix != "" {
		text = t.prefix + " " + text
		out = withText(out, text)
	}
	if t.Record.State == types.StateNew {
		t.Update(types.RecordPatch{State: types.Ptr(types.StateActive)})
	}
	if !t.unintelligible {
		t.Update(d.opts.Machine.ClearUnintelligible(t.Record))
	}
	if !t.oversized {
		t.Update(d.opts.Machine.ClearOversize(t.Record))
	}

	repeated, p := d.opts.Machine.OnBotResponse(t.Record, text)
	t.Update(p)
	if repeated {
		logging.Dispatch("%s: identical response repeated, handing off", t.UserID)
		return types.Silent{}
	}
	return out
}

func withText(o types.Outcome, text string) types.Outcome {
	if img, ok := o.(types.Image); ok {
		img.Content = text
		return img
	}
	return types.Text{Content: text}
}

// persist saves the patch (always, so activity is refreshed) and the turn
// history.
func (d *Dispatcher) persist(ctx context.Context, t *Turn, out types.Outcome, handler string, log *logging.RequestLogger, audit *logging.AuditLogger) {
	if err := d.opts.Store.Save(ctx, t.UserID, t.Patch); err != nil {
		log.Error("store save failed for %s: %v", t.UserID, err)
		audit.StoreFallback(err)
	}

	h, ok := d.opts.Store.(store.History)
	if !ok {
		return
	}
	if err := h.AppendTurn(ctx, t.UserID, store.TurnEntry{Role: store.RoleUser, Content: t.Original, At: t.Now}); err != nil {
		log.Warn("history append failed: %v", err)
		return
	}
	if text := types.OutcomeText(out); text != "" {
		if err := h.AppendTurn(ctx, t.UserID, store.TurnEntry{Role: store.RoleBot, Content: text, Handler: handler, At: t.Now}); err != nil {
			log.Warn("history append failed: %v", err)
		}
	}
}

// =============================================================================
// EXTERNAL ACTIONS
// =============================================================================

// Release hands a conversation back to the bot.
func (d *Dispatcher) Release(ctx context.Context, userID string) (*types.ConversationRecord, error) {
	return d.external(ctx, userID, "release", d.opts.Machine.Release())
}

// TakeOver marks a human agent as active on the conversation.
func (d *Dispatcher) TakeOver(ctx context.Context, userID string) (*types.ConversationRecord, error) {
	return d.external(ctx, userID, "takeover", d.opts.Machine.TakeOver(d.opts.Now()))
}

func (d *Dispatcher) external(ctx context.Context, userID, action string, p types.RecordPatch) (*types.ConversationRecord, error) {
	before, err := d.opts.Store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, userID, err)
	}
	if err := d.opts.Store.Save(ctx, userID, p); err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, userID, err)
	}
	after, err := d.opts.Store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, userID, err)
	}
	logging.Escalation("%s on %s: %s -> %s", action, userID, before.State, after.State)
	logging.Audit(userID, uuid.NewString()).StateChange(string(before.State), string(after.State))
	return after, nil
}

// Reset deletes a conversation.
func (d *Dispatcher) Reset(ctx context.Context, userID string) error {
	if err := d.opts.Store.Reset(ctx, userID); err != nil {
		return fmt.Errorf("reset %s: %w", userID, err)
	}
	logging.Dispatch("conversation %s reset", userID)
	return nil
}

// Record returns the current record, creating it if absent.
func (d *Dispatcher) Record(ctx context.Context, userID string) (*types.ConversationRecord, error) {
	return d.opts.Store.Load(ctx, userID)
}

// List returns the records in state ("" for all).
func (d *Dispatcher) List(ctx context.Context, state types.State) ([]*types.ConversationRecord, error) {
	l, ok := d.opts.Store.(store.Lister)
	if !ok {
		return nil, ErrListUnsupported
	}
	return l.List(ctx, state)
}

// History returns up to limit past turns, oldest first.
func (d *Dispatcher) History(ctx context.Context, userID string, limit int) ([]store.TurnEntry, error) {
	h, ok := d.opts.Store.(store.History)
	if !ok {
		return nil, nil
	}
	return h.RecentTurns(ctx, userID, limit)
}
