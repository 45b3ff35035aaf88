// Package dimension parses free-form size expressions and reconciles them
// against the fixed catalog of made-to-size panels.
package dimension

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Dimension is a requested width x height in meters.
type Dimension struct {
	Width  float64
	Height float64
	// Reference is set when the size was estimated from a comparison object.
	Reference string
}

// Canonical returns the sides ordered small, large.
func (d Dimension) Canonical() (float64, float64) {
	if d.Width <= d.Height {
		return d.Width, d.Height
	}
	return d.Height, d.Width
}

// Area returns width * height.
func (d Dimension) Area() float64 {
	return d.Width * d.Height
}

// IsWhole reports whether both sides are whole meters.
func (d Dimension) IsWhole() bool {
	return isWhole(d.Width) && isWhole(d.Height)
}

// String renders the dimension as typed order "WxH".
func (d Dimension) String() string {
	return fmt.Sprintf("%sx%s", FormatMeters(d.Width), FormatMeters(d.Height))
}

// Key is the orientation-insensitive repeat-counter key, smaller side first.
func Key(d Dimension) string {
	a, b := d.Canonical()
	return fmt.Sprintf("%sx%s", FormatMeters(a), FormatMeters(b))
}

// FormatMeters prints a side without trailing zeros (3, 3.5, 4.2).
func FormatMeters(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isWhole(v float64) bool {
	return math.Abs(v-math.Round(v)) < 1e-9
}

const (
	num  = `(\d+(?:[.,]\d+)?)`
	unit = `(?:\s*(?:metros?|mts|mt|m)\.?)?`
)

var (
	// "6 metros de largo por 4 de ancho", "4 de ancho x 6 de largo"
	verboseLargoAncho = regexp.MustCompile(num + unit + `\s*de\s+largo\s*(?:por|x|y|\*)\s*` + num + unit + `(?:\s*de\s+ancho)?`)
	verboseAnchoLargo = regexp.MustCompile(num + unit + `\s*de\s+ancho\s*(?:por|x|y|\*)\s*` + num + unit + `(?:\s*de\s+largo)?`)

	// "3x4", "3 x 4", "3*4", "3 por 4", "3.5 x 4 m", "3,5x4mts"
	separated = regexp.MustCompile(`(?:^|[^\d.,])` + num + unit + `\s*(?:x|\*|×|por)\s*` + num + unit)

	// "3:4" but not clock times like "3:30 pm" or "a las 5:30"
	colon     = regexp.MustCompile(`(?:^|[^\d.,:])` + num + `\s*:\s*` + num + `(?:\s*(am|pm|hrs?|horas)\b)?`)
	minutes   = regexp.MustCompile(`^\d{2}$`)
	timeLabel = regexp.MustCompile(`\b(?:las?|horas?|hrs?)\s*$`)

	// "medida 3 4", "de 3 4" followed by something that is not a count noun
	spaced     = regexp.MustCompile(`\b(?:medidas?|mide|mida|de)\s+` + num + `\s+` + num + `\b(\s+\w+)?`)
	countNouns = map[string]bool{"piezas": true, "pzas": true, "pz": true, "mallas": true, "unidades": true, "rollos": true}
)

// Parse extracts the first width x height pair from normalized text.
// Surface forms: NxM, N x M, N*M, N por M, verbose "N de largo por M de
// ancho" (width/height ordered as width first), decimal comma, colon and
// "medida N M".
func Parse(text string) (Dimension, bool) {
	text = strings.ToLower(text)

	if m := verboseLargoAncho.FindStringSubmatch(text); m != nil {
		// largo first: report as ancho x largo
		return build(m[2], m[1])
	}
	if m := verboseAnchoLargo.FindStringSubmatch(text); m != nil {
		return build(m[1], m[2])
	}
	if m := separated.FindStringSubmatch(text); m != nil {
		return build(m[1], m[2])
	}
	if m := colon.FindStringSubmatchIndex(text); m != nil && !clockTime(text, m) {
		return build(text[m[2]:m[3]], text[m[4]:m[5]])
	}
	if m := spaced.FindStringSubmatch(text); m != nil {
		if next := strings.TrimSpace(m[3]); next == "" || !countNouns[next] {
			return build(m[1], m[2])
		}
	}
	return Dimension{}, false
}

// clockTime reports whether a colon match reads as a time of day: an am/pm
// suffix, two-digit minutes or a preceding "a las".
func clockTime(text string, m []int) bool {
	if m[6] >= 0 {
		return true
	}
	return minutes.MatchString(text[m[4]:m[5]]) || timeLabel.MatchString(text[:m[2]])
}

// HasDimension is a cheap pre-check used to skip edge-case detection.
func HasDimension(text string) bool {
	_, ok := Parse(text)
	return ok
}

func build(a, b string) (Dimension, bool) {
	w, err := parseNumber(a)
	if err != nil {
		return Dimension{}, false
	}
	h, err := parseNumber(b)
	if err != nil {
		return Dimension{}, false
	}
	return Dimension{Width: w, Height: h}, true
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

// ParseAll returns every NxM pair in text, in order, without duplicates.
// Only the separated forms are considered; verbose and spaced forms describe
// a single size.
func ParseAll(text string) []Dimension {
	text = strings.ToLower(text)
	var out []Dimension
	seen := make(map[string]bool)
	for _, m := range separated.FindAllStringSubmatch(text, -1) {
		d, ok := build(m[1], m[2])
		if !ok || seen[Key(d)] {
			continue
		}
		seen[Key(d)] = true
		out = append(out, d)
	}
	return out
}
