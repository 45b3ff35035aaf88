package types

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSpecs_NewValuesOverride(t *testing.T) {
	base := ProductSpec{ProductType: ProductRoll, Color: "verde", Percentage: Ptr(50)}
	update := ProductSpec{Color: "negro", Width: Ptr(4.2)}

	got := MergeSpecs(base, update)

	want := ProductSpec{ProductType: ProductRoll, Color: "negro", Percentage: Ptr(50), Width: Ptr(4.2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeSpecs mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeSpecs_EmptyNeverClears(t *testing.T) {
	base := ProductSpec{ProductType: ProductConfeccionada, Size: "3x4", Quantity: Ptr(2), CustomerName: "Ana"}

	got := MergeSpecs(base, ProductSpec{})

	if diff := cmp.Diff(base, got); diff != "" {
		t.Errorf("merging an empty spec changed the base (-want +got):\n%s", diff)
	}
}

func TestMergeSpecs_Idempotent(t *testing.T) {
	base := ProductSpec{Size: "4x6"}
	update := ProductSpec{Color: "black"}

	once := MergeSpecs(base, update)
	twice := MergeSpecs(once, update)

	assert.Empty(t, cmp.Diff(once, twice))
}

func TestMergeSpecs_DoesNotAlias(t *testing.T) {
	update := ProductSpec{Quantity: Ptr(3)}
	got := MergeSpecs(ProductSpec{}, update)
	*update.Quantity = 9

	require.NotNil(t, got.Quantity)
	assert.Equal(t, 3, *got.Quantity)
}

func TestRecordApply_PartialUpdate(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewRecord("u1", "Sofía", now)
	rec.LastIntent = "greeting"
	rec.ProductSpecs = ProductSpec{Color: "verde"}

	rec.Apply(RecordPatch{
		State:        Ptr(StateActive),
		ProductSpecs: &ProductSpec{Size: "3x4"},
	})

	assert.Equal(t, StateActive, rec.State)
	assert.Equal(t, "greeting", rec.LastIntent, "untouched fields survive")
	assert.Equal(t, "verde", rec.ProductSpecs.Color)
	assert.Equal(t, "3x4", rec.ProductSpecs.Size)
	assert.Equal(t, "Sofía", rec.PersonaName)
}

func TestRecordApply_Takeover(t *testing.T) {
	now := time.Now()
	rec := NewRecord("u1", "", now)

	rec.Apply(RecordPatch{SetTakeover: true, AgentTookOverAt: &now})
	require.NotNil(t, rec.AgentTookOverAt)

	rec.Apply(RecordPatch{LastIntent: Ptr("x")})
	require.NotNil(t, rec.AgentTookOverAt, "patch without SetTakeover keeps the timestamp")

	rec.Apply(RecordPatch{SetTakeover: true})
	assert.Nil(t, rec.AgentTookOverAt)
}

func TestRecordPatch_Merge(t *testing.T) {
	var p RecordPatch
	assert.True(t, p.IsZero())

	p.Merge(RecordPatch{LastIntent: Ptr("a"), ProductSpecs: &ProductSpec{Color: "verde"}})
	p.Merge(RecordPatch{LastIntent: Ptr("b"), ProductSpecs: &ProductSpec{Size: "2x3"}})

	require.NotNil(t, p.LastIntent)
	assert.Equal(t, "b", *p.LastIntent)
	require.NotNil(t, p.ProductSpecs)
	assert.Equal(t, "verde", p.ProductSpecs.Color)
	assert.Equal(t, "2x3", p.ProductSpecs.Size)
	assert.False(t, p.IsZero())
}

func TestRecordClone_Deep(t *testing.T) {
	now := time.Now()
	rec := NewRecord("u1", "", now)
	rec.AgentTookOverAt = &now
	rec.ProductSpecs.Quantity = Ptr(1)

	cp := rec.Clone()
	*cp.ProductSpecs.Quantity = 5
	later := now.Add(time.Hour)
	cp.AgentTookOverAt = &later

	assert.Equal(t, 1, *rec.ProductSpecs.Quantity)
	assert.True(t, rec.AgentTookOverAt.Equal(now))
}

func TestOutcomeText(t *testing.T) {
	assert.Equal(t, "", OutcomeText(Silent{}))
	assert.Equal(t, "hola", OutcomeText(Text{Content: "hola"}))
	assert.Equal(t, "foto", OutcomeText(Image{Content: "foto", ImageURL: "http://x"}))
	assert.Equal(t, KindImage, Image{}.Kind())
}

func TestStateBotActive(t *testing.T) {
	assert.True(t, StateNew.BotActive())
	assert.True(t, StateActive.BotActive())
	assert.False(t, StateClosed.BotActive())
	assert.False(t, StateNeedsHuman.BotActive())
	assert.False(t, State("bogus").Valid())
}

func TestCatalogSizeNormalize(t *testing.T) {
	c := CatalogSize{Width: 3, Height: 4, Price: 450}.Normalize()
	assert.Equal(t, 12.0, c.Area)
	assert.Equal(t, "3x4", c.SizeStr)
}
