package dispatch

import (
	"context"
	"fmt"
	"math"
	"strings"

	"shadebot/internal/catalog"
	"shadebot/internal/dimension"
	"shadebot/internal/escalation"
	"shadebot/internal/logging"
	"shadebot/internal/specs"
	"shadebot/internal/types"
)

// LastIntent labels written by the product handlers.
const (
	intentSizeQuote  = "size_quote"
	intentFractional = "size_fractional"
	intentOversize   = "oversize"
	intentSpecQuote  = "spec_quote"
	intentRollQuery  = "roll_query"
	intentClarify    = "clarify:"
	intentUnintel    = "unintelligible"
)

func isPanel(pt types.ProductType) bool {
	return pt == types.ProductConfeccionada || pt == types.ProductUnknown
}

// specDimension answers deterministically from the extracted spec: panel
// sizes against the catalog, the next missing slot, or a quote once the spec
// is complete.
func (d *Dispatcher) specDimension(ctx context.Context, t *Turn) (types.Outcome, bool) {
	hasDim := dimension.HasDimension(t.Normalized)
	if m, ok := t.Fast(); ok && m.Definition != nil && !hasDim {
		// a configured intent ("envian rollos?") outranks slot filling
		return nil, false
	}
	if len(dimension.ParseAll(t.Normalized)) > 1 {
		return nil, false
	}

	dim, ok := dimension.Parse(t.Normalized)
	if !ok {
		dim, ok = dimension.LookupReference(t.Normalized)
	}
	if ok && isPanel(t.Spec.ProductType) {
		return d.quotePanel(t, dim)
	}

	if t.Extracted.IsEmpty() || typeOnly(t) {
		return nil, false
	}
	if q, ok := specs.NextQuestion(t.Spec); ok {
		return d.clarify(t, string(specs.Missing(t.Spec)[0]), q)
	}
	t.Update(d.opts.Machine.ResolvedClarification(t.Record))
	return d.quoteSpec(ctx, t)
}

// typeOnly is true when the message names a product type and nothing else
// while the conversation had no product yet: a general question that the
// classifier or the catalog fallbacks answer better than a slot question.
func typeOnly(t *Turn) bool {
	e := t.Extracted
	return e.ProductType != "" && t.Record.ProductSpecs.ProductType == "" &&
		e.Size == "" && e.Width == nil && e.Length == nil && e.Percentage == nil &&
		e.Quantity == nil && e.Color == ""
}

// clarify asks about slot. Asking about the same slot twice in a row counts
// as unresolved; at the machine's limit the conversation escalates.
func (d *Dispatcher) clarify(t *Turn, slot, question string) (types.Outcome, bool) {
	label := intentClarify + slot
	if t.Record.LastIntent == label {
		escalated, p := d.opts.Machine.OnClarification(t.Record)
		t.Update(p)
		if escalated {
			return types.Text{Content: copyClarifyEscal}, true
		}
		question = copyAskAgain + lowerFirst(question)
	} else {
		t.Update(types.RecordPatch{ClarificationCount: types.Ptr(1)})
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(label)})
	return types.Text{Content: question}, true
}

func (d *Dispatcher) quotePanel(t *Turn, dim dimension.Dimension) (types.Outcome, bool) {
	v := d.sizes.Resolve(dim)
	if t.Spec.ProductType == types.ProductUnknown {
		t.Update(types.RecordPatch{ProductSpecs: &types.ProductSpec{ProductType: types.ProductConfeccionada}})
	}

	switch v.Kind {
	case dimension.KindExact, dimension.KindContaining:
		t.Update(d.opts.Machine.ClearOversize(t.Record))
		t.Update(d.opts.Machine.ResolvedClarification(t.Record))
		t.Update(types.RecordPatch{
			LastIntent:   types.Ptr(intentSizeQuote),
			ProductSpecs: &types.ProductSpec{Size: v.Match.SizeStr},
		})
		text := dimension.Describe(v, false)
		if q := t.Spec.Quantity; q != nil && *q > 1 {
			text = strings.TrimSuffix(text, "¿Cuántas piezas necesitas?")
			text = strings.TrimSpace(text) + fmt.Sprintf(" Por %d piezas serían %s.", *q, dimension.FormatPrice(v.Match.Price*float64(*q)))
		}
		return types.Text{Content: text}, true

	case dimension.KindFractional:
		t.Update(d.opts.Machine.ClearOversize(t.Record))
		t.Update(types.RecordPatch{LastIntent: types.Ptr(intentFractional)})
		return types.Text{Content: dimension.Describe(v, false)}, true

	case dimension.KindOversized:
		t.oversized = true
		escalated, p := d.opts.Machine.OnOversize(t.Record, v.Key)
		t.Update(p)
		if escalated {
			return types.Text{Content: fmt.Sprintf(copyOversizeEscal, v.Key)}, true
		}
		text := dimension.Describe(v, aboutRolls(t))
		if t.Record.OversizeCount > 1 {
			text = copyRepeatPrefix + lowerFirst(text)
		}
		t.Update(types.RecordPatch{LastIntent: types.Ptr(intentOversize)})
		return types.Text{Content: text}, true
	}

	q, _ := specs.NextQuestion(types.ProductSpec{ProductType: types.ProductConfeccionada})
	return d.clarify(t, string(specs.SlotSize), q)
}

// aboutRolls reports whether earlier turns were already about rolls.
func aboutRolls(t *Turn) bool {
	return t.Record.ProductSpecs.ProductType == types.ProductRoll ||
		t.Record.LastIntent == intentRollQuery || t.Record.CustomerType == "wholesale"
}

// quoteSpec prices a complete spec.
func (d *Dispatcher) quoteSpec(ctx context.Context, t *Turn) (types.Outcome, bool) {
	s := t.Spec
	qty := 1
	if s.Quantity != nil && *s.Quantity > 0 {
		qty = *s.Quantity
	}
	color := ""
	if s.Color != "" {
		color = " en color " + s.Color
	}

	var text string
	switch s.ProductType {
	case types.ProductConfeccionada:
		dim, ok := dimension.Parse(s.Size)
		if !ok {
			return nil, false
		}
		v := d.sizes.Resolve(dim)
		if v.Match == nil {
			return nil, false
		}
		text = fmt.Sprintf("Perfecto: malla sombra confeccionada de %s m%s, %s por pieza.", v.Match.SizeStr, color, dimension.FormatPrice(v.Match.Price))
		if qty > 1 {
			text += fmt.Sprintf(" Por %d piezas el total es %s.", qty, dimension.FormatPrice(v.Match.Price*float64(qty)))
		}

	case types.ProductRoll:
		width := fmt.Sprintf("%.2f", *s.Width)
		pct := fmt.Sprintf("%d%%", *s.Percentage)
		p := d.findProduct(ctx, []string{"rollo", width}, width, pct)
		if p == nil {
			text = fmt.Sprintf("El rollo de %s m al %s lo manejamos sobre pedido. ¿Quieres que un asesor te lo cotice?", width, pct)
			break
		}
		text = fmt.Sprintf("El %s%s cuesta %s.", lowerFirst(p.Name), color, dimension.FormatPrice(p.Price))
		if qty > 1 {
			text += fmt.Sprintf(" Por %d rollos serían %s.", qty, dimension.FormatPrice(p.Price*float64(qty)))
		}

	case types.ProductGroundCover:
		width := fmt.Sprintf("%.2f", *s.Width)
		p := d.findProduct(ctx, []string{"antimaleza", width}, width)
		if p == nil {
			text = fmt.Sprintf("La malla antimaleza de %s m de ancho la manejamos sobre pedido. ¿Quieres que un asesor te la cotice?", width)
			break
		}
		text = fmt.Sprintf("La %s%s cuesta %s por rollo.", lowerFirst(p.Name), color, dimension.FormatPrice(p.Price))

	case types.ProductEdging:
		p := d.findProduct(ctx, []string{"borde"})
		if p == nil {
			return nil, false
		}
		rolls := int(math.Ceil(*s.Length / 10))
		text = fmt.Sprintf("Para %s m de borde necesitas %d rollo(s) de 10 m (%s c/u): total %s.",
			dimension.FormatMeters(*s.Length), rolls, dimension.FormatPrice(p.Price), dimension.FormatPrice(p.Price*float64(rolls)))

	case types.ProductAccessory:
		return d.listFamilyProducts(ctx, t, "accesorios")

	default:
		return nil, false
	}

	t.Update(types.RecordPatch{LastIntent: types.Ptr(intentSpecQuote)})
	return types.Text{Content: text + " ¿Te paso los datos para hacer tu pedido?"}, true
}

// findProduct searches the catalog and returns the first product whose name
// contains every needle.
func (d *Dispatcher) findProduct(ctx context.Context, keywords []string, needles ...string) *catalog.Product {
	products, err := d.opts.Catalog.Search(ctx, keywords)
	if err != nil {
		logging.CatalogWarn("search %v: %v", keywords, err)
		return nil
	}
	for i := range products {
		ok := true
		for _, n := range needles {
			if !strings.Contains(products[i].Name, n) {
				ok = false
				break
			}
		}
		if ok {
			return &products[i]
		}
	}
	return nil
}

// =============================================================================
// INTENT
// =============================================================================

// intent is the two-tier resolver: configured keyword hits route directly;
// otherwise edge-case detection and classification run concurrently and the
// confidence gate decides.
func (d *Dispatcher) intent(ctx context.Context, t *Turn) (types.Outcome, bool) {
	if m, ok := t.Fast(); ok && m.Definition != nil {
		t.audit().IntentResolved(m.Intent, "keyword", 1, true)
		return d.route(ctx, t, *m.Definition)
	}
	if len(dimension.ParseAll(t.Normalized)) > 1 {
		return nil, false
	}

	a := t.Analysis(ctx)
	if !a.EdgeCaseSkipped && !a.EdgeCase.Failed {
		action, p := d.opts.Machine.OnEdgeCase(t.Record, a.EdgeCase.Verdict())
		t.Update(p)
		switch action {
		case escalation.EdgeEscalate:
			t.unintelligible = true
			return types.Text{Content: copyEdgeEscalate}, true
		case escalation.EdgeClarify:
			t.unintelligible = true
			t.Update(types.RecordPatch{LastIntent: types.Ptr(intentUnintel)})
			return types.Text{Content: copyEdgeClarify}, true
		}
	}

	c := a.Classification
	t.audit().IntentResolved(c.Intent, "classifier", c.Confidence, c.Trusted)
	if c.Trusted && c.Definition != nil {
		if t.Record.UnknownCount != 0 {
			t.Update(types.RecordPatch{UnknownCount: types.Ptr(0)})
		}
		return d.route(ctx, t, *c.Definition)
	}
	t.Update(types.RecordPatch{UnknownCount: types.Ptr(t.Record.UnknownCount + 1)})
	logging.DispatchDebug("%s: intent %s below gate (%.2f), falling back", t.UserID, c.Intent, c.Confidence)
	return nil, false
}

// route answers a resolved intent according to its handler type.
func (d *Dispatcher) route(ctx context.Context, t *Turn, def types.IntentDefinition) (types.Outcome, bool) {
	var out types.Outcome
	switch def.HandlerType {
	case types.HandlerPattern:
		out = types.Text{Content: fill(def.Response, t.Persona, d.opts.StoreName)}

	case types.HandlerFlow:
		flow, ok := d.opts.Campaigns.Lookup(def.FlowRef)
		if !ok {
			logging.CampaignDebug("intent %s names unknown flow %q", def.Key, def.FlowRef)
			return nil, false
		}
		o, ok := d.runFlow(ctx, t, flow)
		if !ok {
			return nil, false
		}
		t.Update(types.RecordPatch{CampaignRef: types.Ptr(def.FlowRef)})
		return o, true

	case types.HandlerHumanHandoff:
		t.Update(d.opts.Machine.Escalate(def.Key))
		out = types.Text{Content: copyHandoff}

	case types.HandlerAIGenerate:
		text, err := d.generate(ctx, t, def.Description)
		if err != nil {
			return nil, false
		}
		out = types.Text{Content: text}

	default:
		return nil, false
	}
	t.Update(types.RecordPatch{LastIntent: types.Ptr(def.Key)})
	return out, true
}
