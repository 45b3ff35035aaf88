package campaign

import (
	"context"
	"fmt"
	"strings"

	"shadebot/internal/catalog"
	"shadebot/internal/dimension"
	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// Built-in campaign references.
const (
	RefPromoConfeccionada = "promo-confeccionada"
	RefMayoreoRollos      = "mayoreo-rollos"
)

// Builtin returns a registry with the stock flows over src.
func Builtin(src catalog.Source) *Registry {
	r := NewRegistry()
	// references are constants; registration cannot collide
	_ = r.Register(RefPromoConfeccionada, &PromoFlow{Catalog: src, Discount: 0.10, Featured: 4})
	_ = r.Register(RefMayoreoRollos, &WholesaleFlow{Catalog: src, Tiers: DefaultTiers()})
	return r
}

func introIntent(ref string) string {
	return "campaign:" + ref
}

// =============================================================================
// PROMO: MADE-TO-SIZE PANELS
// =============================================================================

// PromoFlow quotes made-to-size panels at a promotional discount.
type PromoFlow struct {
	Catalog  catalog.Source
	Discount float64
	// Featured is how many sizes the introduction lists.
	Featured int
}

func (f *PromoFlow) Name() string { return "promo_confeccionada" }

// TryHandle quotes exact and covering sizes at the promo price and introduces
// the promotion once. Oversized and fractional sizes are left to the regular
// dimension handling, which tracks repeats.
func (f *PromoFlow) TryHandle(ctx context.Context, req Request) (Reply, bool) {
	sizes, err := f.Catalog.Sizes(ctx, types.ProductConfeccionada)
	if err != nil || len(sizes) == 0 {
		logging.Get(logging.CategoryCampaign).Warn("promo flow has no sizes: %v", err)
		return Reply{}, false
	}
	res := dimension.NewResolver(sizes)

	d, ok := dimension.Parse(req.Normalized)
	if !ok {
		d, ok = dimension.LookupReference(req.Normalized)
	}
	if ok {
		v := res.Resolve(d)
		if v.Kind != dimension.KindExact && v.Kind != dimension.KindContaining {
			return Reply{}, false
		}
		var b strings.Builder
		if v.Kind == dimension.KindContaining {
			fmt.Fprintf(&b, "Para %s m la medida que te cubre es la de %s m. ", d.String(), v.Match.SizeStr)
		}
		fmt.Fprintf(&b, "Con la promoción, la malla sombra confeccionada de %s m queda en %s (precio normal %s). ¿Cuántas piezas te aparto?",
			v.Match.SizeStr, dimension.FormatPrice(f.price(v.Match.Price)), dimension.FormatPrice(v.Match.Price))
		return Reply{
			Outcome: types.Text{Content: b.String()},
			Patch: types.RecordPatch{
				LastIntent: types.Ptr(introIntent(RefPromoConfeccionada)),
				ProductSpecs: &types.ProductSpec{
					ProductType: types.ProductConfeccionada,
					Size:        v.Match.SizeStr,
				},
			},
		}, true
	}

	if req.Record != nil && req.Record.LastIntent == introIntent(RefPromoConfeccionada) {
		return Reply{}, false
	}

	n := f.Featured
	if n <= 0 || n > len(sizes) {
		n = len(sizes)
	}
	lines := make([]string, 0, n)
	for _, s := range res.Sizes()[:n] {
		lines = append(lines, fmt.Sprintf("• %s m: %s (antes %s)", s.SizeStr,
			dimension.FormatPrice(f.price(s.Price)), dimension.FormatPrice(s.Price)))
	}
	content := fmt.Sprintf("¡Gracias por escribir por la promoción! Este mes la malla sombra confeccionada tiene %d%% de descuento:\n%s\n¿Qué medida necesitas?",
		int(f.Discount*100+0.5), strings.Join(lines, "\n"))

	patch := types.RecordPatch{
		LastIntent:   types.Ptr(introIntent(RefPromoConfeccionada)),
		ProductSpecs: &types.ProductSpec{ProductType: types.ProductConfeccionada},
	}
	if fam, err := f.Catalog.Family(ctx, string(types.ProductConfeccionada)); err == nil && fam != nil && fam.ImageURL != "" {
		return Reply{Outcome: types.Image{Content: content, ImageURL: fam.ImageURL}, Patch: patch}, true
	}
	return Reply{Outcome: types.Text{Content: content}, Patch: patch}, true
}

func (f *PromoFlow) price(list float64) float64 {
	return list * (1 - f.Discount)
}

// =============================================================================
// WHOLESALE ROLLS
// =============================================================================

// Tier is a volume discount starting at MinRolls.
type Tier struct {
	MinRolls int
	Discount float64
}

// DefaultTiers returns the stock wholesale discounts.
func DefaultTiers() []Tier {
	return []Tier{{MinRolls: 10, Discount: 0.15}, {MinRolls: 5, Discount: 0.08}}
}

// WholesaleFlow quotes rolls with volume discounts.
type WholesaleFlow struct {
	Catalog catalog.Source
	// Tiers are ordered by MinRolls descending.
	Tiers []Tier
}

func (f *WholesaleFlow) Name() string { return "mayoreo_rollos" }

// TryHandle quotes once width and percentage are known, and otherwise
// introduces the wholesale terms once. Later incomplete turns pass through so
// the missing-slot question is asked by the regular handlers.
func (f *WholesaleFlow) TryHandle(ctx context.Context, req Request) (Reply, bool) {
	spec := req.Spec
	if spec.Width != nil && spec.Percentage != nil {
		return f.quote(ctx, spec)
	}
	if req.Record != nil && req.Record.LastIntent == introIntent(RefMayoreoRollos) {
		return Reply{}, false
	}
	var b strings.Builder
	b.WriteString("Para mayoreo manejamos rollos de malla sombra de 2.10 m y 4.20 m por 100 m de largo.")
	for i := len(f.Tiers) - 1; i >= 0; i-- {
		t := f.Tiers[i]
		fmt.Fprintf(&b, " Desde %d rollos: %d%% de descuento.", t.MinRolls, int(t.Discount*100+0.5))
	}
	b.WriteString(" ¿Qué ancho, porcentaje de sombra y cuántos rollos necesitas?")
	return Reply{
		Outcome: types.Text{Content: b.String()},
		Patch: types.RecordPatch{
			LastIntent:   types.Ptr(introIntent(RefMayoreoRollos)),
			CustomerType: types.Ptr("wholesale"),
			ProductSpecs: &types.ProductSpec{ProductType: types.ProductRoll},
		},
	}, true
}

func (f *WholesaleFlow) quote(ctx context.Context, spec types.ProductSpec) (Reply, bool) {
	width := fmt.Sprintf("%.2f", *spec.Width)
	pct := fmt.Sprintf("%d%%", *spec.Percentage)

	products, err := f.Catalog.Search(ctx, []string{"rollo", width})
	if err != nil {
		logging.Get(logging.CategoryCampaign).Warn("wholesale search failed: %v", err)
		return Reply{}, false
	}
	var match *catalog.Product
	for i := range products {
		p := products[i]
		if strings.Contains(p.Name, width) && strings.Contains(p.Name, pct) {
			match = &p
			break
		}
	}

	patch := types.RecordPatch{
		LastIntent:   types.Ptr(introIntent(RefMayoreoRollos)),
		CustomerType: types.Ptr("wholesale"),
	}
	if match == nil {
		content := fmt.Sprintf("El rollo de %s m al %s lo surtimos sobre pedido. Un asesor te confirma precio y tiempo de entrega; ¿me compartes tu nombre y ciudad?", width, pct)
		return Reply{Outcome: types.Text{Content: content}, Patch: patch}, true
	}

	qty := 1
	if spec.Quantity != nil && *spec.Quantity > 0 {
		qty = *spec.Quantity
	}
	discount := f.discountFor(qty)
	unit := match.Price * (1 - discount)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s por rollo.", match.Name, dimension.FormatPrice(match.Price))
	if discount > 0 {
		fmt.Fprintf(&b, " Por %d rollos tu precio de mayoreo es %s c/u (%d%% de descuento), total %s.",
			qty, dimension.FormatPrice(unit), int(discount*100+0.5), dimension.FormatPrice(unit*float64(qty)))
	} else {
		fmt.Fprintf(&b, " Por %d rollo(s) el total es %s. A partir de %d rollos aplica precio de mayoreo.",
			qty, dimension.FormatPrice(unit*float64(qty)), f.minTier())
	}
	b.WriteString(" ¿Te preparo la cotización formal?")
	return Reply{Outcome: types.Text{Content: b.String()}, Patch: patch}, true
}

func (f *WholesaleFlow) discountFor(qty int) float64 {
	for _, t := range f.Tiers {
		if qty >= t.MinRolls {
			return t.Discount
		}
	}
	return 0
}

func (f *WholesaleFlow) minTier() int {
	min := 0
	for _, t := range f.Tiers {
		if min == 0 || t.MinRolls < min {
			min = t.MinRolls
		}
	}
	return min
}
