// Package specs pulls structured product attributes out of customer messages
// and merges them into the cumulative per-conversation spec.
//
// Each slot has one extractor. Extractors run independently over the
// normalized text and return a sparse spec; Extract composes them.
package specs

import (
	"regexp"
	"strconv"
	"strings"

	"shadebot/internal/dimension"
	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// Extract runs every slot extractor. normalized feeds all of them except the
// customer name, which needs the capitalization of original.
func Extract(normalized, original string) types.ProductSpec {
	var spec types.ProductSpec

	spec.ProductType = ExtractProductType(normalized)
	extractDimensions(normalized, spec.ProductType, &spec)
	if p, ok := ExtractPercentage(normalized); ok {
		spec.Percentage = &p
	}
	if q, ok := ExtractQuantity(normalized); ok {
		spec.Quantity = &q
	}
	spec.Color = ExtractColor(normalized)
	spec.CustomerName = ExtractCustomerName(original)

	if !spec.IsEmpty() {
		logging.SpecsDebug("extracted %s", spec.Summary())
	}
	return spec
}

// Merge folds update into base: new values win, absent values never clear.
func Merge(base, update types.ProductSpec) types.ProductSpec {
	return types.MergeSpecs(base, update)
}

// =============================================================================
// PRODUCT TYPE
// =============================================================================

var productKeywords = []struct {
	pt    types.ProductType
	words []string
}{
	{types.ProductGroundCover, []string{"antimaleza", "anti maleza", "maleza", "ground cover"}},
	{types.ProductEdging, []string{"borde", "bordes", "separador", "delimitador"}},
	{types.ProductRoll, []string{"rollo", "rollos", "bobina", "por metro", "metro lineal"}},
	{types.ProductConfeccionada, []string{"confeccionada", "confeccionadas", "con ojillos", "lista para instalar", "toldo"}},
	{types.ProductAccessory, []string{"accesorio", "accesorios", "tensor", "tensores", "grapas", "kit de instalacion", "cable acerado"}},
}

// ExtractProductType returns the product type named in text, or unknown.
func ExtractProductType(text string) types.ProductType {
	padded := " " + text + " "
	for _, pk := range productKeywords {
		for _, w := range pk.words {
			if containsWord(padded, w) {
				return pk.pt
			}
		}
	}
	return types.ProductUnknown
}

// =============================================================================
// DIMENSIONS AND ROLL LENGTH
// =============================================================================

var (
	rollLength  = regexp.MustCompile(`\b(?:rollos?|bobina)\s+de\s+(\d+)\s*(?:m|mts|metros)?\b`)
	largoOnly   = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\s*(?:m|mts|metros)?\s+de\s+largo\b`)
	anchoOnly   = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\s*(?:m|mts|metros)?\s+de\s+ancho\b`)
	rollWidths  = regexp.MustCompile(`\b(2[.,]10?|4[.,]20?)\b`)
	minRollSide = 25.0
)

func extractDimensions(text string, pt types.ProductType, spec *types.ProductSpec) {
	if d, ok := dimension.Parse(text); ok {
		w, h := d.Canonical()
		if pt == types.ProductRoll || pt == types.ProductGroundCover {
			// rolls are quoted as width x length
			spec.Width = &w
			if h >= minRollSide {
				spec.Length = &h
			}
			return
		}
		spec.Width = &d.Width
		spec.Height = &d.Height
		spec.Size = dimension.Key(d)
		return
	}

	if m := rollLength.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 10 {
			spec.Length = &v
		}
	}
	if m := largoOnly.FindStringSubmatch(text); m != nil && spec.Length == nil {
		if v, ok := parseFloat(m[1]); ok && pt != types.ProductConfeccionada {
			spec.Length = &v
		}
	}
	if m := anchoOnly.FindStringSubmatch(text); m != nil {
		if v, ok := parseFloat(m[1]); ok {
			spec.Width = &v
		}
	} else if pt == types.ProductRoll || pt == types.ProductGroundCover {
		if m := rollWidths.FindStringSubmatch(text); m != nil {
			if v, ok := parseFloat(m[1]); ok {
				spec.Width = &v
			}
		}
	}
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return v, err == nil
}

// =============================================================================
// PERCENTAGE
// =============================================================================

var (
	percentNumeric = regexp.MustCompile(`\b(\d{2,3})\s*(?:%|por\s*ciento|porciento)`)
	percentAl      = regexp.MustCompile(`\bal\s+(\d{2,3})\b`)

	// qualitative shade levels mapped to the nearest stocked density
	qualitative = []struct {
		phrases []string
		value   int
	}{
		{[]string{"sombra total", "maxima sombra", "sombra maxima", "sombra completa"}, 90},
		{[]string{"mucha sombra", "bastante sombra", "harta sombra", "sombra fuerte"}, 80},
		{[]string{"media sombra", "sombra media", "sombra mediana", "sombra regular"}, 50},
		{[]string{"poca sombra", "sombra ligera", "sombra suave", "sombrita"}, 35},
	}
)

// ExtractPercentage returns the shade density requested in text.
func ExtractPercentage(text string) (int, bool) {
	for _, re := range []*regexp.Regexp{percentNumeric, percentAl} {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil && v >= 10 && v <= 100 {
				return v, true
			}
		}
	}
	padded := " " + text + " "
	for _, q := range qualitative {
		for _, p := range q.phrases {
			if containsWord(padded, p) {
				return q.value, true
			}
		}
	}
	return 0, false
}

// =============================================================================
// QUANTITY
// =============================================================================

var (
	numberWords = map[string]int{
		"un": 1, "una": 1, "uno": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
		"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10, "doce": 12, "quince": 15, "veinte": 20,
	}
	countNoun      = `(?:piezas?|pzas?|mallas?|unidades|unidad|rollos?|juegos?|kits?|lonas?)`
	quantityDigits = regexp.MustCompile(`\b(\d{1,3})\s*` + countNoun + `\b`)
	quantityWords  = regexp.MustCompile(`\b(un|una|uno|dos|tres|cuatro|cinco|seis|siete|ocho|nueve|diez|doce|quince|veinte)\s+` + countNoun + `\b`)
	quantityOfSize = regexp.MustCompile(`\b(?:ocupo|necesito|quiero|serian|seran)\s+(\d{1,2})\s+de\s+(\w+)`)
	quantityLabel  = regexp.MustCompile(`\bcantidad\s*:?\s*(\d{1,3})\b`)
	sizeSeparator  = regexp.MustCompile(`(?:x|\*|por)\s*$`)
)

// ExtractQuantity returns the number of pieces requested.
func ExtractQuantity(text string) (int, bool) {
	for _, loc := range quantityDigits.FindAllStringSubmatchIndex(text, -1) {
		// "3 x 4 malla": the 4 is a side, not a count
		if sizeSeparator.MatchString(text[:loc[2]]) {
			continue
		}
		if v, err := strconv.Atoi(text[loc[2]:loc[3]]); err == nil && v > 0 {
			return v, true
		}
	}
	if m := quantityWords.FindStringSubmatch(text); m != nil {
		return numberWords[m[1]], true
	}
	if m := quantityOfSize.FindStringSubmatch(text); m != nil && m[2] != "ancho" && m[2] != "largo" {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			return v, true
		}
	}
	if m := quantityLabel.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// =============================================================================
// COLOR
// =============================================================================

var colorSynonyms = map[string]string{
	"negra": "negro", "negro": "negro", "negras": "negro", "negros": "negro",
	"verde": "verde", "verdes": "verde",
	"beige": "beige", "beis": "beige", "arena": "beige", "crema": "beige",
	"blanca": "blanco", "blanco": "blanco", "blancas": "blanco", "blancos": "blanco",
	"azul": "azul", "azules": "azul",
	"roja": "rojo", "rojo": "rojo", "rojas": "rojo", "rojos": "rojo",
	"gris": "gris", "grises": "gris",
}

// ExtractColor returns the canonical color named in text, or "".
func ExtractColor(text string) string {
	for _, tok := range strings.FieldsFunc(text, notLetter) {
		if c, ok := colorSynonyms[tok]; ok {
			return c
		}
	}
	return ""
}

// =============================================================================
// CUSTOMER NAME
// =============================================================================

var customerName = regexp.MustCompile(`(?:\b[Ss]oy|[Mm]e\s+llamo|[Mm]i\s+nombre\s+es|[Aa]\s+nombre\s+de)\s+(\p{Lu}\p{Ll}+(?:\s+\p{Lu}\p{Ll}+)?)`)

// ExtractCustomerName finds a capitalized name after a naming phrase in the
// original, un-normalized text.
func ExtractCustomerName(original string) string {
	if m := customerName.FindStringSubmatch(original); m != nil {
		return m[1]
	}
	return ""
}

func notLetter(r rune) bool {
	return !(r >= 'a' && r <= 'z') && r < 0x80
}

func containsWord(padded, phrase string) bool {
	for from := 0; ; {
		idx := strings.Index(padded[from:], phrase)
		if idx < 0 {
			return false
		}
		idx += from
		end := idx + len(phrase)
		if (idx == 0 || !isLetter(padded[idx-1])) && (end >= len(padded) || !isLetter(padded[end])) {
			return true
		}
		from = idx + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || b >= 0x80
}
