package dimension

import (
	"fmt"
	"strings"

	"shadebot/internal/types"
)

// Describe renders the customer-facing reply for a verdict. Rolls are only
// mentioned for oversized requests when the conversation is already about
// rolls.
func Describe(v Verdict, aboutRolls bool) string {
	var b strings.Builder

	if v.Requested.Reference != "" {
		fmt.Fprintf(&b, "Para %s normalmente se usa una medida aproximada de %s m. ",
			v.Requested.Reference, v.Requested.String())
	}

	switch v.Kind {
	case KindExact:
		fmt.Fprintf(&b, "¡Sí la tenemos! La malla sombra confeccionada de %s m tiene un precio de %s. ",
			v.Match.SizeStr, FormatPrice(v.Match.Price))
		b.WriteString("¿Cuántas piezas necesitas?")

	case KindContaining:
		fmt.Fprintf(&b, "No manejamos exactamente %s m, pero la medida que te cubre es la de %s m con un precio de %s. ",
			v.Requested.String(), v.Match.SizeStr, FormatPrice(v.Match.Price))
		b.WriteString("¿Te interesa?")

	case KindFractional:
		fmt.Fprintf(&b, "Nuestras medidas estándar van en metros enteros. Para %s m te puedo ofrecer: ", v.Requested.String())
		opts := make([]string, 0, len(v.Alternatives))
		for _, alt := range v.Alternatives {
			opts = append(opts, fmt.Sprintf("%s m a %s", alt.SizeStr, FormatPrice(alt.Price)))
		}
		b.WriteString(strings.Join(opts, ", "))
		b.WriteString(". ¿Cuál te acomoda mejor?")

	case KindOversized:
		fmt.Fprintf(&b, "La medida de %s m excede nuestras medidas estándar", v.Requested.String())
		if v.Largest != nil {
			fmt.Fprintf(&b, " (la más grande es de %s m)", v.Largest.SizeStr)
		}
		b.WriteString(". Para ese tamaño se necesita fabricación especial a la medida o combinar varias piezas estándar.")
		if aboutRolls {
			b.WriteString(" También puedes cubrir esa área con rollos de malla sombra de 4.20 m de ancho.")
		}
		b.WriteString(" ¿Quieres que un asesor te cotice?")

	default:
		b.WriteString("No logré entender la medida. ¿Me la puedes escribir como ancho x largo? Por ejemplo: 3x4.")
	}

	return strings.TrimSpace(b.String())
}

// FormatPrice renders whole pesos with thousands separators ("$1,250").
func FormatPrice(p float64) string {
	n := int64(p + 0.5)
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return "$" + s
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return "$" + string(out)
}

// ListSizes renders a short overview of stock sizes.
func ListSizes(sizes []types.CatalogSize, limit int) string {
	if limit <= 0 || limit > len(sizes) {
		limit = len(sizes)
	}
	lines := make([]string, 0, limit)
	for _, s := range sizes[:limit] {
		lines = append(lines, fmt.Sprintf("• %s m: %s", s.SizeStr, FormatPrice(s.Price)))
	}
	return strings.Join(lines, "\n")
}
