package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"shadebot/internal/catalog"
	"shadebot/internal/dimension"
	"shadebot/internal/logging"
	"shadebot/internal/perception"
	"shadebot/internal/store"
	"shadebot/internal/types"
)

const (
	intentCatalog    = "catalog_overview"
	intentCrossSell  = "cross_sell"
	intentFamily     = "family_lookup"
	intentSearch     = "product_search"
	intentMultiSize  = "multi_size"
	intentGenerative = "generative"
)

var (
	catalogQuestion = regexp.MustCompile(`\b(?:que|cuales)\s+(?:medidas|tamanos|productos|modelos)\b|\bcatalogo\b|\blista\s+de\s+precios\b|\bque\s+(?:manejan|venden|tienen|manejas|vendes)\b`)
	crossSellAsk    = regexp.MustCompile(`\baccesorios?\b|\bque\s+mas\s+(?:necesito|ocupo)\b|\bpara\s+instalarla?\b|\bcomo\s+(?:la\s+)?instalo\b|\bcomplementos?\b`)

	stopwords = map[string]bool{
		"para": true, "como": true, "cual": true, "cuanto": true, "cuesta": true, "tienen": true,
		"tienes": true, "quiero": true, "necesito": true, "ocupo": true, "precio": true, "malla": true,
		"sombra": true, "esta": true, "este": true, "donde": true, "cuando": true, "tambien": true,
		"favor": true, "buenas": true, "tardes": true, "noches": true, "dias": true, "hola": true,
	}
)

// catalogOverview lists stock sizes and product lines for broad catalog
// questions.
func (d *Dispatcher) catalogOverview(_ context.Context, t *Turn) (types.Outcome, bool) {
	if !catalogQuestion.MatchString(t.Normalized) || len(d.sizes.Sizes()) == 0 {
		return nil, false
	}
	names := make([]string, 0, len(d.families))
	for _, f := range d.families {
		if f.ProductType != types.ProductConfeccionada {
			names = append(names, strings.ToLower(f.Name))
		}
	}
	text := "Estas son algunas medidas de malla sombra confeccionada:\n" + dimension.ListSizes(d.sizes.Sizes(), 8)
	if len(names) > 0 {
		text += "\n\nTambién manejamos " + strings.Join(names, ", ") + "."
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(intentCatalog)})
	return types.Text{Content: text + " ¿Qué medida te interesa?"}, true
}

// rollQuery describes the roll line when a roll is mentioned without enough
// detail to quote.
func (d *Dispatcher) rollQuery(_ context.Context, t *Turn) (types.Outcome, bool) {
	if !hasWord(t.Normalized, "rollo", "rollos", "bobina", "bobinas") && !strings.Contains(t.Normalized, "por metro") {
		return nil, false
	}
	f := catalog.ByType(d.families, types.ProductRoll)
	if f == nil {
		return nil, false
	}
	widths := make([]string, len(f.Widths))
	for i, w := range f.Widths {
		widths[i] = fmt.Sprintf("%.2f", w)
	}
	pcts := make([]string, len(f.Percentages))
	for i, p := range f.Percentages {
		pcts[i] = fmt.Sprintf("%d%%", p)
	}
	text := fmt.Sprintf("Manejamos rollos de malla sombra de %s m de ancho por %s m de largo, en %s de sombra. Desde %s el rollo. ¿Qué ancho y porcentaje te interesan?",
		strings.Join(widths, " y "), dimension.FormatMeters(f.RollLength), strings.Join(pcts, ", "), dimension.FormatPrice(f.PriceFrom))
	t.Update(types.RecordPatch{
		LastIntent:   types.Ptr(intentRollQuery),
		ProductSpecs: &types.ProductSpec{ProductType: types.ProductRoll},
	})
	if f.ImageURL != "" {
		return types.Image{Content: text, ImageURL: f.ImageURL}, true
	}
	return types.Text{Content: text}, true
}

// crossSell recommends the complementary lines of the product the customer
// is looking at.
func (d *Dispatcher) crossSell(ctx context.Context, t *Turn) (types.Outcome, bool) {
	if !crossSellAsk.MatchString(t.Normalized) {
		return nil, false
	}
	pt := t.Spec.ProductType
	if pt == types.ProductUnknown || pt == types.ProductAccessory {
		pt = types.ProductConfeccionada
	}
	base := catalog.ByType(d.families, pt)
	if base == nil || len(base.CrossSell) == 0 {
		return nil, false
	}
	for _, key := range base.CrossSell {
		if out, ok := d.listFamilyProducts(ctx, t, key); ok {
			t.Update(types.RecordPatch{LastIntent: types.Ptr(intentCrossSell)})
			return out, true
		}
	}
	return nil, false
}

// listFamilyProducts lists the products of one family with prices.
func (d *Dispatcher) listFamilyProducts(ctx context.Context, t *Turn, key string) (types.Outcome, bool) {
	f, err := d.opts.Catalog.Family(ctx, key)
	if err != nil || f == nil {
		return nil, false
	}
	products, err := d.opts.Catalog.Search(ctx, f.Keywords)
	if err != nil {
		logging.CatalogWarn("search family %s: %v", key, err)
		return nil, false
	}
	var lines []string
	for _, p := range products {
		if p.Family == f.Key {
			lines = append(lines, fmt.Sprintf("• %s: %s", p.Name, dimension.FormatPrice(p.Price)))
		}
	}
	if len(lines) == 0 {
		return nil, false
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(intentCrossSell)})
	text := fmt.Sprintf("Para complementar te recomiendo nuestros %s:\n%s\n¿Te agrego alguno?", strings.ToLower(f.Name), strings.Join(lines, "\n"))
	return types.Text{Content: text}, true
}

// tokens splits normalized text into search words, dropping short words and
// stopwords. Adjacent pairs of longer words are appended for two-word
// keywords.
func tokens(normalized string) []string {
	fields := words(normalized)
	var out []string
	for _, w := range fields {
		if len(w) >= 4 && !stopwords[w] {
			out = append(out, w)
		}
	}
	for i := 0; i+1 < len(fields); i++ {
		if len(fields[i]) >= 3 && len(fields[i+1]) >= 3 {
			out = append(out, fields[i]+" "+fields[i+1])
		}
	}
	return out
}

// familyLookup answers a question that names a product line.
func (d *Dispatcher) familyLookup(ctx context.Context, t *Turn) (types.Outcome, bool) {
	if len(dimension.ParseAll(t.Normalized)) > 1 {
		return nil, false
	}
	for _, tok := range tokens(t.Normalized) {
		f, err := d.opts.Catalog.Family(ctx, tok)
		if err != nil {
			logging.CatalogWarn("family %q: %v", tok, err)
			return nil, false
		}
		if f == nil {
			continue
		}
		text := fmt.Sprintf("%s: %s Desde %s. ¿Te doy más detalles o te cotizo alguna medida?", f.Name, f.Description, dimension.FormatPrice(f.PriceFrom))
		t.Update(types.RecordPatch{LastIntent: types.Ptr(intentFamily)})
		if f.ImageURL != "" {
			return types.Image{Content: text, ImageURL: f.ImageURL}, true
		}
		return types.Text{Content: text}, true
	}
	return nil, false
}

// productSearch answers with the best keyword matches from the catalog.
func (d *Dispatcher) productSearch(ctx context.Context, t *Turn) (types.Outcome, bool) {
	if len(dimension.ParseAll(t.Normalized)) > 1 {
		return nil, false
	}
	kw := tokens(t.Normalized)
	if len(kw) == 0 {
		return nil, false
	}
	products, err := d.opts.Catalog.Search(ctx, kw)
	if err != nil {
		logging.CatalogWarn("search %v: %v", kw, err)
		return nil, false
	}
	if len(products) == 0 {
		return nil, false
	}
	if len(products) > 3 {
		products = products[:3]
	}
	lines := make([]string, len(products))
	for i, p := range products {
		lines[i] = fmt.Sprintf("• %s: %s por %s", p.Name, dimension.FormatPrice(p.Price), p.Unit)
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(intentSearch)})
	return types.Text{Content: "Esto es lo que tenemos:\n" + strings.Join(lines, "\n") + "\n¿Cuál te interesa?"}, true
}

// multiSize quotes every size in a message that lists several.
func (d *Dispatcher) multiSize(_ context.Context, t *Turn) (types.Outcome, bool) {
	dims := dimension.ParseAll(t.Normalized)
	if len(dims) < 2 {
		return nil, false
	}
	lines := make([]string, 0, len(dims))
	for _, dim := range dims {
		v := d.sizes.Resolve(dim)
		switch v.Kind {
		case dimension.KindExact:
			lines = append(lines, fmt.Sprintf("• %s m: %s", v.Match.SizeStr, dimension.FormatPrice(v.Match.Price)))
		case dimension.KindContaining:
			lines = append(lines, fmt.Sprintf("• %s m: te cubre la de %s m a %s", v.Key, v.Match.SizeStr, dimension.FormatPrice(v.Match.Price)))
		case dimension.KindFractional:
			if len(v.Alternatives) > 0 {
				alt := v.Alternatives[0]
				lines = append(lines, fmt.Sprintf("• %s m: la más cercana es de %s m a %s", v.Key, alt.SizeStr, dimension.FormatPrice(alt.Price)))
			}
		case dimension.KindOversized:
			lines = append(lines, fmt.Sprintf("• %s m: requiere fabricación especial", v.Key))
		}
	}
	if len(lines) == 0 {
		return nil, false
	}
	t.Update(types.RecordPatch{
		LastIntent:   types.Ptr(intentMultiSize),
		ProductSpecs: &types.ProductSpec{ProductType: types.ProductConfeccionada},
	})
	return types.Text{Content: "Te paso los precios:\n" + strings.Join(lines, "\n") + "\n¿Cuál te interesa?"}, true
}

// generative is the last resort: a free-form answer from the completion
// service. A failure yields the apology.
func (d *Dispatcher) generative(ctx context.Context, t *Turn) (types.Outcome, bool) {
	text, err := d.generate(ctx, t, "")
	if err != nil {
		return types.Text{Content: d.opts.Apology}, true
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(intentGenerative)})
	return types.Text{Content: text}, true
}

var errEmptyGeneration = errors.New("dispatch: empty generation")

// generate asks the completion service for a reply grounded on the catalog,
// the conversation's spec and its recent history. topic narrows the answer
// for ai_generate intents.
func (d *Dispatcher) generate(ctx context.Context, t *Turn, topic string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, asesora de ventas", t.Persona)
	if d.opts.StoreName != "" {
		fmt.Fprintf(&b, " de %s", d.opts.StoreName)
	}
	b.WriteString(", una tienda de malla sombra en México. Responde en español, en máximo tres oraciones, con tono amable. No inventes precios ni medidas que no estén en el catálogo.\n\nCatálogo:\n")
	for _, f := range d.families {
		fmt.Fprintf(&b, "- %s: %s Desde %s.\n", f.Name, f.Description, dimension.FormatPrice(f.PriceFrom))
	}
	if sizes := d.sizes.Sizes(); len(sizes) > 0 {
		fmt.Fprintf(&b, "Medidas confeccionadas:\n%s\n", dimension.ListSizes(sizes, 0))
	}
	if s := t.Spec.Summary(); s != "" {
		fmt.Fprintf(&b, "\nLo que sabemos del cliente: %s\n", s)
	}
	if topic != "" {
		fmt.Fprintf(&b, "\nTema de la pregunta: %s\n", topic)
	}

	msgs := []perception.ChatMessage{{Role: "system", Content: b.String()}}
	history, err := d.History(ctx, t.UserID, d.opts.HistoryTurns)
	if err != nil {
		logging.DispatchDebug("%s: history unavailable: %v", t.UserID, err)
	}
	for _, h := range history {
		role := "user"
		if h.Role == store.RoleBot {
			role = "assistant"
		}
		msgs = append(msgs, perception.ChatMessage{Role: role, Content: h.Content})
	}
	msgs = append(msgs, perception.ChatMessage{Role: "user", Content: t.Original})

	out, err := d.opts.Service.Generate(ctx, msgs)
	if err != nil {
		if !errors.Is(err, perception.ErrNoProvider) {
			logging.DispatchError("%s: generation failed: %v", t.UserID, err)
		}
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errEmptyGeneration
	}
	return out, nil
}
