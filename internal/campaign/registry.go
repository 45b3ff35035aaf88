// Package campaign holds campaign-specific conversation flows, looked up by
// the campaign reference a conversation arrived with.
//
// The registry is static: flows are registered at startup and a reference
// with no flow is a typed miss, never a failure of the turn.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// ErrFlowNotFound is returned by Get for an unregistered reference.
var ErrFlowNotFound = errors.New("campaign: flow not found")

// Request is what a flow sees of the current turn.
type Request struct {
	UserID     string
	Message    string
	Normalized string
	Record     *types.ConversationRecord
	// Spec is the record's product spec merged with this message's
	// extraction.
	Spec    types.ProductSpec
	Persona string
}

// Reply is a flow's answer plus the record changes it wants persisted.
type Reply struct {
	Outcome types.Outcome
	Patch   types.RecordPatch
}

// Flow has the same try-handle shape as a dispatcher handler: false means
// the flow has no opinion on this message.
type Flow interface {
	Name() string
	TryHandle(ctx context.Context, req Request) (Reply, bool)
}

// Registry maps campaign references to flows.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]Flow
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]Flow)}
}

// Register adds a flow under ref. References are unique.
func (r *Registry) Register(ref string, f Flow) error {
	if ref == "" || f == nil {
		return fmt.Errorf("campaign: empty reference or nil flow")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.flows[ref]; dup {
		return fmt.Errorf("campaign: %q already registered", ref)
	}
	r.flows[ref] = f
	logging.CampaignDebug("registered flow %s -> %s", ref, f.Name())
	return nil
}

// Lookup returns the flow for ref.
func (r *Registry) Lookup(ref string) (Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[ref]
	return f, ok
}

// Get is Lookup with a typed miss.
func (r *Registry) Get(ref string) (Flow, error) {
	f, ok := r.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, ref)
	}
	return f, nil
}

// Refs lists the registered references, sorted.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.flows))
	for ref := range r.flows {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}
