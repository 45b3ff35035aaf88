package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadebot/internal/catalog"
	"shadebot/internal/normalize"
	"shadebot/internal/specs"
	"shadebot/internal/types"
)

type stubFlow struct{ name string }

func (s stubFlow) Name() string { return s.name }

func (s stubFlow) TryHandle(context.Context, Request) (Reply, bool) {
	return Reply{Outcome: types.Text{Content: s.name}}, true
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("spring", stubFlow{"spring"}))
	assert.Error(t, r.Register("spring", stubFlow{"again"}), "duplicate reference")
	assert.Error(t, r.Register("", stubFlow{"x"}))
	assert.Error(t, r.Register("nil", nil))

	f, ok := r.Lookup("spring")
	require.True(t, ok)
	assert.Equal(t, "spring", f.Name())

	_, ok = r.Lookup("autumn")
	assert.False(t, ok)

	_, err := r.Get("autumn")
	assert.True(t, errors.Is(err, ErrFlowNotFound))

	assert.Equal(t, []string{"spring"}, r.Refs())
}

func TestBuiltin(t *testing.T) {
	r := Builtin(mustCatalog(t))
	assert.Equal(t, []string{RefMayoreoRollos, RefPromoConfeccionada}, r.Refs())
}

func mustCatalog(t *testing.T) catalog.Source {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func request(rec *types.ConversationRecord, msg string) Request {
	n := normalize.Normalize(msg)
	spec := rec.ProductSpecs
	spec = specs.Merge(spec, specs.Extract(n, msg))
	return Request{UserID: rec.UserID, Message: msg, Normalized: n, Record: rec, Spec: spec}
}

func TestPromoFlow_IntroOnce(t *testing.T) {
	f, _ := Builtin(mustCatalog(t)).Lookup(RefPromoConfeccionada)
	rec := types.NewRecord("u1", "Sofía", time.Time{})

	reply, ok := f.TryHandle(context.Background(), request(rec, "hola, vi la promo"))
	require.True(t, ok)
	img, isImage := reply.Outcome.(types.Image)
	require.True(t, isImage, "the intro carries the family picture")
	assert.Contains(t, img.Content, "10% de descuento")
	assert.Contains(t, img.Content, "2x2 m: $162 (antes $180)")
	assert.NotEmpty(t, img.ImageURL)

	rec.Apply(reply.Patch)
	_, ok = f.TryHandle(context.Background(), request(rec, "y de que color la tienen?"))
	assert.False(t, ok, "after the intro, messages without a size pass through")
}

func TestPromoFlow_QuotesExactAndCovering(t *testing.T) {
	f, _ := Builtin(mustCatalog(t)).Lookup(RefPromoConfeccionada)
	rec := types.NewRecord("u1", "Sofía", time.Time{})

	reply, ok := f.TryHandle(context.Background(), request(rec, "la de 4x3"))
	require.True(t, ok)
	assert.Equal(t, "Con la promoción, la malla sombra confeccionada de 3x4 m queda en $378 (precio normal $420). ¿Cuántas piezas te aparto?",
		types.OutcomeText(reply.Outcome))
	require.NotNil(t, reply.Patch.ProductSpecs)
	assert.Equal(t, "3x4", reply.Patch.ProductSpecs.Size)

	reply, ok = f.TryHandle(context.Background(), request(rec, "para una cochera"))
	require.True(t, ok)
	assert.Contains(t, types.OutcomeText(reply.Outcome), "4x6 m queda en $738")
}

func TestPromoFlow_OversizedPassesThrough(t *testing.T) {
	f, _ := Builtin(mustCatalog(t)).Lookup(RefPromoConfeccionada)
	rec := types.NewRecord("u1", "Sofía", time.Time{})
	_, ok := f.TryHandle(context.Background(), request(rec, "10x27"))
	assert.False(t, ok)
}

func TestWholesaleFlow(t *testing.T) {
	f, _ := Builtin(mustCatalog(t)).Lookup(RefMayoreoRollos)
	rec := types.NewRecord("u2", "Mariana", time.Time{})

	reply, ok := f.TryHandle(context.Background(), request(rec, "precio de mayoreo"))
	require.True(t, ok)
	intro := types.OutcomeText(reply.Outcome)
	assert.Contains(t, intro, "Desde 5 rollos: 8% de descuento. Desde 10 rollos: 15% de descuento.")
	rec.Apply(reply.Patch)
	assert.Equal(t, "wholesale", rec.CustomerType)
	assert.Equal(t, types.ProductRoll, rec.ProductSpecs.ProductType)

	_, ok = f.TryHandle(context.Background(), request(rec, "y en verde?"))
	assert.False(t, ok)

	reply, ok = f.TryHandle(context.Background(), request(rec, "10 rollos de 4.20 al 90%"))
	require.True(t, ok)
	assert.Equal(t, "Rollo 4.20 x 100 m al 90%: $6,890 por rollo. Por 10 rollos tu precio de mayoreo es $5,857 c/u (15% de descuento), total $58,565. ¿Te preparo la cotización formal?",
		types.OutcomeText(reply.Outcome))
}

func TestWholesaleFlow_SmallOrderAndMissingProduct(t *testing.T) {
	f := &WholesaleFlow{Catalog: mustCatalog(t), Tiers: DefaultTiers()}
	rec := types.NewRecord("u3", "Mariana", time.Time{})
	rec.ProductSpecs = types.ProductSpec{ProductType: types.ProductRoll}

	reply, ok := f.TryHandle(context.Background(), request(rec, "un rollo de 4.20 al 80%"))
	require.True(t, ok)
	text := types.OutcomeText(reply.Outcome)
	assert.Contains(t, text, "$5,990")
	assert.Contains(t, text, "A partir de 5 rollos")

	reply, ok = f.TryHandle(context.Background(), request(rec, "rollo de 2.10 al 35%"))
	require.True(t, ok)
	assert.Contains(t, types.OutcomeText(reply.Outcome), "sobre pedido")
}
