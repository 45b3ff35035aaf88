package perception

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadebot/internal/normalize"
)

func TestClassifier_TrustedAboveGate(t *testing.T) {
	svc := &fakeService{classify: ClassifyResult{Intent: "shipping", Confidence: 0.82, Reasoning: "asks about delivery"}}
	c := NewClassifier(svc, DefaultDefinitions(), 0)

	got := c.Classify(context.Background(), "¿llegan a Mérida?", ClassifyContext{PreviousIntent: "greeting"})
	assert.Equal(t, "shipping", got.Intent)
	assert.True(t, got.Trusted)
	assert.False(t, got.Failed)
	require.NotNil(t, got.Definition)
	assert.Equal(t, "shipping", got.Definition.Key)

	assert.Equal(t, "greeting", svc.lastRequest.Context.PreviousIntent)
	assert.NotEmpty(t, svc.lastRequest.Intents)
}

func TestClassifier_BelowGateFallsThrough(t *testing.T) {
	svc := &fakeService{classify: ClassifyResult{Intent: "shipping", Confidence: 0.59}}
	got := NewClassifier(svc, DefaultDefinitions(), 0.6).Classify(context.Background(), "x", ClassifyContext{})
	assert.Equal(t, "shipping", got.Intent)
	assert.False(t, got.Trusted)
	assert.False(t, got.Failed)
}

func TestClassifier_FailuresDegradeToUnknown(t *testing.T) {
	tests := []struct {
		name string
		svc  CompletionService
	}{
		{"service error", &fakeService{classifyErr: errors.New("timeout")}},
		{"malformed", &fakeService{classifyErr: ErrMalformedReply}},
		{"undefined intent", &fakeService{classify: ClassifyResult{Intent: "teleport", Confidence: 0.99}}},
		{"no provider", NoopService{}},
		{"nil service", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewClassifier(tt.svc, DefaultDefinitions(), 0).Classify(context.Background(), "hola", ClassifyContext{})
			assert.Equal(t, IntentUnknown, got.Intent)
			assert.Zero(t, got.Confidence)
			assert.True(t, got.Failed)
			assert.False(t, got.Trusted)
		})
	}
}

func TestClassifier_UnknownIsNotFailure(t *testing.T) {
	svc := &fakeService{classify: ClassifyResult{Intent: IntentUnknown, Confidence: 0.3}}
	got := NewClassifier(svc, DefaultDefinitions(), 0).Classify(context.Background(), "asdf", ClassifyContext{})
	assert.Equal(t, IntentUnknown, got.Intent)
	assert.False(t, got.Failed)
	assert.False(t, got.Trusted)
}

func TestClassifier_ClampsConfidence(t *testing.T) {
	svc := &fakeService{classify: ClassifyResult{Intent: "hours", Confidence: 7}}
	got := NewClassifier(svc, DefaultDefinitions(), 0).Classify(context.Background(), "x", ClassifyContext{})
	assert.Equal(t, 1.0, got.Confidence)
}

func TestEdgeCaseDetector(t *testing.T) {
	d := NewEdgeCaseDetector(&fakeService{edge: EdgeCaseResult{Unintelligible: true, Confidence: 0.95}})
	got := d.Detect(context.Background(), "asdkjh qwe")
	assert.True(t, got.Unintelligible)
	assert.False(t, got.Failed)
	v := got.Verdict()
	assert.True(t, v.Unintelligible)
	assert.Equal(t, 0.95, v.Confidence)

	failed := NewEdgeCaseDetector(&fakeService{edgeErr: errors.New("down")}).Detect(context.Background(), "x")
	assert.True(t, failed.Failed)
	assert.False(t, failed.Unintelligible)
	assert.Zero(t, failed.Confidence)
}

func TestResolver_AnalyzeRunsBothConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	svc := &fakeService{
		classify: ClassifyResult{Intent: "product_info", Confidence: 0.9},
		edge:     EdgeCaseResult{Confidence: 0.97},
		barrier:  &barrier,
	}
	r := NewResolver(DefaultDefinitions(), svc, 0)

	// sequential calls would each wait for the other until the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := "de que material es"
	got := r.Analyze(ctx, msg, normalize.Normalize(msg), ClassifyContext{})

	assert.False(t, got.EdgeCaseSkipped)
	assert.False(t, got.EdgeCase.Failed)
	assert.True(t, got.Classification.Trusted)
	classify, edge := svc.calls()
	assert.Equal(t, 1, classify)
	assert.Equal(t, 1, edge)
}

func TestResolver_AnalyzeSkipsEdgeCaseForDimensions(t *testing.T) {
	svc := &fakeService{classify: ClassifyResult{Intent: "price_inquiry", Confidence: 0.7}}
	r := NewResolver(nil, svc, 0)

	for _, msg := range []string{"una de 4x6", "quiero comprar malla"} {
		got := r.Analyze(context.Background(), msg, normalize.Normalize(msg), ClassifyContext{})
		assert.True(t, got.EdgeCaseSkipped, msg)
	}
	_, edge := svc.calls()
	assert.Zero(t, edge)
}

func TestResolver_AnalyzeDegradesWhenServiceDown(t *testing.T) {
	r := NewResolver(nil, NoopService{}, 0)
	got := r.Analyze(context.Background(), "hmm", "hmm", ClassifyContext{})
	assert.Equal(t, IntentUnknown, got.Classification.Intent)
	assert.True(t, got.Classification.Failed)
	assert.True(t, got.EdgeCase.Failed)
}

func TestResolver_Fast(t *testing.T) {
	r := NewResolver(nil, nil, 0)
	m, ok := r.Fast("hola")
	require.True(t, ok)
	assert.Equal(t, IntentGreeting, m.Intent)
	assert.NotNil(t, r.Definitions())
}
