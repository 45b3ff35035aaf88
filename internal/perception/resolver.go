package perception

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"shadebot/internal/dimension"
	"shadebot/internal/logging"
	"shadebot/internal/usage"
)

// Analysis is the result of the probabilistic tier for one message.
type Analysis struct {
	Classification Classification
	EdgeCase       EdgeCase
	// EdgeCaseSkipped is true when a cheap pre-check made detection
	// unnecessary.
	EdgeCaseSkipped bool
	Duration        time.Duration
}

// Resolver composes both tiers.
type Resolver struct {
	fast       *FastTier
	classifier *Classifier
	edges      *EdgeCaseDetector
	defs       *Definitions
}

// NewResolver wires a resolver over defs and svc.
func NewResolver(defs *Definitions, svc CompletionService, threshold float64) *Resolver {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	return &Resolver{
		fast:       NewFastTier(defs),
		classifier: NewClassifier(svc, defs, threshold),
		edges:      NewEdgeCaseDetector(svc),
		defs:       defs,
	}
}

// Definitions returns the live definition set.
func (r *Resolver) Definitions() *Definitions {
	return r.defs
}

// Fast runs the deterministic tier over the normalized message.
func (r *Resolver) Fast(normalized string) (Match, bool) {
	m, ok := r.fast.Match(normalized)
	if ok && m.Intent != IntentBuying {
		tier := "fast"
		if m.Definition != nil {
			tier = "keyword"
		}
		usage.ObserveIntent(m.Intent, tier)
	}
	return m, ok
}

// Analyze runs edge-case detection and classification concurrently. Edge-case
// detection is skipped when the message holds a dimension or buying phrasing,
// since such messages are intelligible by construction. original goes to the
// service; normalized feeds the pre-check.
func (r *Resolver) Analyze(ctx context.Context, original, normalized string, cctx ClassifyContext) Analysis {
	start := time.Now()
	skipEdge := dimension.HasDimension(normalized) || IsBuying(normalized)

	var out Analysis
	out.EdgeCaseSkipped = skipEdge

	g, gctx := errgroup.WithContext(ctx)
	if !skipEdge {
		g.Go(func() error {
			out.EdgeCase = r.edges.Detect(gctx, original)
			return nil // never fail the group; Detect degrades on its own
		})
	}
	g.Go(func() error {
		out.Classification = r.classifier.Classify(gctx, original, cctx)
		return nil
	})
	_ = g.Wait()

	out.Duration = time.Since(start)
	if out.Classification.Trusted {
		usage.ObserveIntent(out.Classification.Intent, "classifier")
	}
	logging.PerceptionDebug("analysis in %v: intent=%s conf=%.2f edge_skipped=%v",
		out.Duration, out.Classification.Intent, out.Classification.Confidence, skipEdge)
	return out
}
