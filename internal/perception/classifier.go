package perception

import (
	"context"
	"math"

	"shadebot/internal/escalation"
	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// DefaultConfidence is the classifier trust gate.
const DefaultConfidence = 0.6

// Classification is a gated classifier verdict.
type Classification struct {
	Intent     string
	Confidence float64
	Reasoning  string
	// Trusted is true when the intent is known and passed the gate.
	Trusted bool
	// Failed is true when the service errored or replied with an intent that
	// is not in the definition list.
	Failed     bool
	Definition *types.IntentDefinition
}

// Classifier is the probabilistic tier.
type Classifier struct {
	svc       CompletionService
	defs      *Definitions
	threshold float64
}

// NewClassifier returns a classifier; a non-positive threshold uses
// DefaultConfidence.
func NewClassifier(svc CompletionService, defs *Definitions, threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultConfidence
	}
	if svc == nil {
		svc = NoopService{}
	}
	return &Classifier{svc: svc, defs: defs, threshold: threshold}
}

// Threshold returns the trust gate.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify never returns an error: failures come back as unknown with zero
// confidence and Failed set.
func (c *Classifier) Classify(ctx context.Context, message string, cctx ClassifyContext) Classification {
	unknown := Classification{Intent: IntentUnknown, Failed: true}

	var intents []types.IntentDefinition
	if c.defs != nil {
		intents = c.defs.List()
	}
	if len(intents) == 0 {
		return unknown
	}

	res, err := c.svc.Classify(ctx, ClassifyRequest{Message: message, Context: cctx, Intents: intents})
	if err != nil {
		logging.PerceptionDebug("classification failed, treating as unknown: %v", err)
		return unknown
	}

	out := Classification{
		Intent:     res.Intent,
		Confidence: clamp01(res.Confidence),
		Reasoning:  res.Reasoning,
	}
	if out.Intent == IntentUnknown {
		return out
	}
	def, ok := c.defs.Lookup(res.Intent)
	if !ok {
		logging.PerceptionWarn("classifier returned undefined intent %q", res.Intent)
		return unknown
	}
	out.Definition = &def
	out.Trusted = out.Confidence >= c.threshold
	logging.PerceptionDebug("classified %q as %s (%.2f, trusted=%v)", message, out.Intent, out.Confidence, out.Trusted)
	return out
}

// EdgeCase is a degraded-safe edge-case verdict.
type EdgeCase struct {
	EdgeCaseResult
	Failed bool
}

// Verdict converts to the escalation machine's input.
func (e EdgeCase) Verdict() escalation.EdgeCase {
	return escalation.EdgeCase{
		Unintelligible: e.Unintelligible,
		Complex:        e.Complex,
		Confidence:     e.Confidence,
	}
}

// EdgeCaseDetector flags unintelligible and specialist-only messages.
type EdgeCaseDetector struct {
	svc CompletionService
}

// NewEdgeCaseDetector wraps svc.
func NewEdgeCaseDetector(svc CompletionService) *EdgeCaseDetector {
	if svc == nil {
		svc = NoopService{}
	}
	return &EdgeCaseDetector{svc: svc}
}

// Detect never returns an error: failures read as a normal message with zero
// confidence.
func (d *EdgeCaseDetector) Detect(ctx context.Context, message string) EdgeCase {
	res, err := d.svc.DetectEdgeCase(ctx, message)
	if err != nil {
		logging.PerceptionDebug("edge-case detection failed, treating as normal: %v", err)
		return EdgeCase{Failed: true}
	}
	res.Confidence = clamp01(res.Confidence)
	return EdgeCase{EdgeCaseResult: res}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
