// Package normalize cleans inbound customer text before analysis.
//
// Normalize is the canonical form every matcher and extractor sees: trimmed,
// whitespace-collapsed, lowercased, accent-folded and with texting shorthand
// rewritten. Rewrite performs only the shorthand step and keeps each token's
// capitalization pattern, for places where the text is shown back to a human.
// Both functions are pure and idempotent.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// shorthand maps lowercase, accent-folded tokens to their canonical form.
// No value may itself be a key, or Normalize would stop being idempotent.
var shorthand = map[string]string{
	// texting abbreviations
	"q":     "que",
	"k":     "que",
	"xq":    "porque",
	"pq":    "porque",
	"porq":  "porque",
	"tb":    "tambien",
	"tmb":   "tambien",
	"tbn":   "tambien",
	"info":  "informacion",
	"xfa":   "por favor",
	"porfa": "por favor",
	"pls":   "por favor",
	"dnd":   "donde",
	"cto":   "cuanto",
	"cuant": "cuanto",
	"ola":   "hola",
	"grax":  "gracias",
	"grs":   "gracias",
	"bn":    "bien",
	"d":     "de",
	"sta":   "esta",
	"nse":   "no se",

	// misspelled domain nouns
	"maya":    "malla",
	"mayas":   "mallas",
	"maia":    "malla",
	"sombre":  "sombra",
	"sonbra":  "sombra",
	"rrollo":  "rollo",
	"royo":    "rollo",
	"metors":  "metros",
	"metos":   "metros",
	"mestros": "metros",

	"antimalesa": "antimaleza",
}

// newFolder returns a fresh chain per call; transformers keep state and are
// not safe for concurrent use.
func newFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Fold lowercases s and strips diacritics ("Información" -> "informacion").
func Fold(s string) string {
	out, _, err := transform.String(newFolder(), strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Normalize returns the canonical analysis form of text.
func Normalize(text string) string {
	folded := Fold(strings.Join(strings.Fields(text), " "))
	if folded == "" {
		return ""
	}
	return rewriteTokens(strings.Split(folded, " "), false)
}

// Rewrite expands shorthand in text while keeping each rewritten token's
// capitalization pattern (ALL CAPS stays ALL CAPS, Initial stays Initial).
// Spacing is collapsed; everything else is left as typed.
func Rewrite(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return rewriteTokens(fields, true)
}

type token struct {
	prefix, core, suffix string
}

func splitToken(s string) token {
	rs := []rune(s)
	start, end := 0, len(rs)
	for start < end && !isWordRune(rs[start]) {
		start++
	}
	for end > start && !isWordRune(rs[end-1]) {
		end--
	}
	return token{prefix: string(rs[:start]), core: string(rs[start:end]), suffix: string(rs[end:])}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func rewriteTokens(fields []string, keepCase bool) string {
	toks := make([]token, len(fields))
	for i, f := range fields {
		toks[i] = splitToken(f)
	}

	out := make([]string, len(toks))
	for i, t := range toks {
		key := Fold(t.core)
		repl, ok := shorthand[key]
		if !ok && key == "x" && betweenWords(toks, i) {
			repl, ok = "por", true
		}
		if !ok {
			out[i] = fields[i]
			continue
		}
		if keepCase {
			repl = matchCase(t.core, repl)
		}
		out[i] = t.prefix + repl + t.suffix
	}
	return strings.Join(out, " ")
}

// betweenWords reports whether token i sits between two alphabetic tokens,
// so "malla x metro" rewrites but "3 x 4" keeps its dimension separator.
func betweenWords(toks []token, i int) bool {
	if i == 0 || i == len(toks)-1 {
		return false
	}
	if toks[i].prefix != "" || toks[i].suffix != "" {
		return false
	}
	return isAlpha(toks[i-1].core) && isAlpha(toks[i+1].core)
}

func matchCase(original, repl string) string {
	letters := 0
	upper := 0
	for _, r := range original {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	switch {
	case letters > 1 && upper == letters:
		return strings.ToUpper(repl)
	case letters > 0 && unicode.IsUpper([]rune(original)[0]):
		rs := []rune(repl)
		rs[0] = unicode.ToUpper(rs[0])
		return string(rs)
	default:
		return repl
	}
}
