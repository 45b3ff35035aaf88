// Package perception turns a customer message into an intent.
//
// Two tiers run per message. The fast tier is an ordered list of phrase and
// keyword matchers over the normalized text. The probabilistic tier asks the
// completion service to classify the raw message against the configured
// intent definitions, and in parallel to flag unintelligible or
// specialist-only messages. Completion failures never surface as errors:
// they degrade to intent "unknown" with zero confidence.
package perception

import (
	"regexp"
	"sort"
	"strings"

	"shadebot/internal/dimension"
	"shadebot/internal/normalize"
	"shadebot/internal/types"
)

// Built-in intents of the fast tier.
const (
	IntentOptOut         = "opt_out"
	IntentHandoff        = "human_handoff"
	IntentFrustration    = "frustration"
	IntentBuying         = "buying_intent"
	IntentGreeting       = "greeting"
	IntentThanks         = "thanks"
	IntentAcknowledgment = "acknowledgment"
	IntentFarewell       = "farewell"
	IntentDeferral       = "purchase_deferral"
	IntentUnknown        = "unknown"
)

// Match is a fast-tier hit.
type Match struct {
	Intent  string
	Matcher string
	// Phrase is the text that triggered the match.
	Phrase string
	// Buying is set when buying phrasing was seen in the same message.
	Buying bool
	// Definition is set for keyword matches of configured intents.
	Definition *types.IntentDefinition
}

// Matcher inspects a normalized message.
type Matcher interface {
	Name() string
	Match(normalized string) (Match, bool)
}

// =============================================================================
// PHRASE MATCHERS
// =============================================================================

// phraseMatcher fires when any phrase occurs on word boundaries. With whole
// set, the message must consist of phrases and filler only.
type phraseMatcher struct {
	name    string
	intent  string
	phrases []string
	whole   bool
	// maxTail bounds the words allowed after a leading phrase; -1 disables.
	maxTail int
	// yields marks conversational matchers skipped after buying phrasing.
	yields bool
	// unlessBuying suppresses the match when the message also asks to buy.
	unlessBuying bool
}

func (m *phraseMatcher) Name() string { return m.name }

func (m *phraseMatcher) Match(normalized string) (Match, bool) {
	text := cleanText(normalized)
	if text == "" || (m.unlessBuying && IsBuying(normalized)) {
		return Match{}, false
	}
	switch {
	case m.whole:
		rest := text
		var hit string
		for rest != "" {
			p, ok := leadingPhrase(rest, m.phrases)
			if !ok {
				p, ok = leadingPhrase(rest, filler)
				if !ok {
					return Match{}, false
				}
			} else if hit == "" {
				hit = p
			}
			rest = strings.TrimSpace(rest[len(p):])
		}
		if hit == "" {
			return Match{}, false
		}
		return Match{Intent: m.intent, Matcher: m.name, Phrase: hit}, true

	case m.maxTail >= 0:
		p, ok := leadingPhrase(text, m.phrases)
		if !ok {
			return Match{}, false
		}
		if len(strings.Fields(text[len(p):])) > m.maxTail {
			return Match{}, false
		}
		return Match{Intent: m.intent, Matcher: m.name, Phrase: p}, true

	default:
		padded := " " + text + " "
		for _, p := range m.phrases {
			if strings.Contains(padded, " "+p+" ") {
				return Match{Intent: m.intent, Matcher: m.name, Phrase: p}, true
			}
		}
		return Match{}, false
	}
}

func (m *phraseMatcher) yieldsToBuying() bool { return m.yields }

type yielder interface {
	yieldsToBuying() bool
}

var (
	punct      = regexp.MustCompile(`[^\p{L}\p{N}\s%.,*]+`)
	trailPunct = regexp.MustCompile(`[.,]+(\s|$)`)
	spaces     = regexp.MustCompile(`\s+`)
)

// cleanText strips emoji and punctuation that never carries meaning for the
// phrase tables.
func cleanText(s string) string {
	s = punct.ReplaceAllString(s, " ")
	s = trailPunct.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func leadingPhrase(text string, phrases []string) (string, bool) {
	best := ""
	for _, p := range phrases {
		if len(p) > len(best) && strings.HasPrefix(text, p) &&
			(len(text) == len(p) || text[len(p)] == ' ') {
			best = p
		}
	}
	return best, best != ""
}

var filler = []string{
	"muchas", "mil", "oye", "oiga", "senor", "senora", "joven", "amigo", "amiga",
	"y", "pues", "este", "bueno", "igualmente", "tambien", "a", "ti", "usted", "ustedes",
	"ok", "okay", "va", "sale", "si", "no", "perfecto", "excelente", "listo", "muy", "bien",
}

// =============================================================================
// BUYING GUARD
// =============================================================================

var (
	buyingVerb = regexp.MustCompile(`\b(?:quiero|quisiera|necesito|ocupo|busco|me interesa|me interesan|comprar|cotizar|cotizacion|cotizame|poner|instalar|colocar|cubrir|techar|pedir|ordenar|apartar)\b`)
	productNoun = regexp.MustCompile(`\b(?:malla|mallas|sombra|rollo|rollos|antimaleza|borde|bordes|toldo|lona|confeccionada|confeccionadas|medida|medidas|metros?|kit|grapas|tensores)\b`)
	priceAsk    = regexp.MustCompile(`\b(?:precio|precios|costo|costos|cuanto (?:cuesta|cuestan|sale|salen|vale|valen|seria|es)|en cuanto|tienen|venden|manejan|hay|envios?|entregan|mandan)\b`)
)

type buyingGuard struct{}

func (buyingGuard) Name() string { return "buying_guard" }

func (buyingGuard) Match(normalized string) (Match, bool) {
	switch {
	case dimension.HasDimension(normalized):
	case buyingVerb.MatchString(normalized) && productNoun.MatchString(normalized):
	case priceAsk.MatchString(normalized):
	default:
		return Match{}, false
	}
	return Match{Intent: IntentBuying, Matcher: "buying_guard", Buying: true}, true
}

// IsBuying reports whether the message carries purchase phrasing.
func IsBuying(normalized string) bool {
	_, ok := buyingGuard{}.Match(normalized)
	return ok
}

// =============================================================================
// KEYWORD MATCHER
// =============================================================================

// keywordMatcher matches configured intent definitions by keyword, highest
// priority first. It reads the live definition set on every call.
type keywordMatcher struct {
	defs *Definitions
}

func (keywordMatcher) Name() string { return "keywords" }

func (k keywordMatcher) Match(normalized string) (Match, bool) {
	if k.defs == nil {
		return Match{}, false
	}
	padded := " " + cleanText(normalized) + " "
	for _, def := range k.defs.List() {
		for _, kw := range def.Keywords {
			kw = normalize.Fold(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(padded, " "+kw+" ") {
				d := def
				return Match{Intent: def.Key, Matcher: "keywords", Phrase: kw, Definition: &d}, true
			}
		}
	}
	return Match{}, false
}

// =============================================================================
// FAST TIER
// =============================================================================

// FastTier evaluates matchers in order and returns the first hit.
type FastTier struct {
	matchers []Matcher
}

// NewFastTier returns the built-in matchers in priority order followed by a
// keyword matcher over defs.
func NewFastTier(defs *Definitions) *FastTier {
	return &FastTier{matchers: append(BuiltinMatchers(), keywordMatcher{defs: defs})}
}

// NewFastTierWith builds a tier from an explicit matcher list.
func NewFastTierWith(matchers ...Matcher) *FastTier {
	return &FastTier{matchers: matchers}
}

// Names lists the matcher names in evaluation order.
func (t *FastTier) Names() []string {
	out := make([]string, len(t.matchers))
	for i, m := range t.matchers {
		out[i] = m.Name()
	}
	return out
}

// Match runs the matchers. Once buying phrasing is seen, conversational
// matchers (greeting, thanks, acknowledgment, farewell, deferral) are skipped
// so "gracias, quiero poner una malla" is not taken as a goodbye. Keyword
// matchers still run; with no later hit the buying match itself is returned.
func (t *FastTier) Match(normalized string) (Match, bool) {
	buying := false
	for _, m := range t.matchers {
		if y, ok := m.(yielder); ok && buying && y.yieldsToBuying() {
			continue
		}
		got, ok := m.Match(normalized)
		if !ok {
			continue
		}
		if got.Intent == IntentBuying {
			buying = true
			continue
		}
		got.Buying = buying
		return got, true
	}
	if buying {
		return Match{Intent: IntentBuying, Matcher: "buying_guard", Buying: true}, true
	}
	return Match{}, false
}

// IsAcknowledgment reports whether the message is a bare acknowledgment.
func IsAcknowledgment(normalized string) bool {
	_, ok := acknowledgmentMatcher.Match(normalized)
	return ok
}

var acknowledgmentMatcher = &phraseMatcher{
	name:   "acknowledgment",
	intent: IntentAcknowledgment,
	phrases: []string{
		"ok", "okay", "oki", "okis", "va", "vale", "sale", "si", "no", "nop", "nel",
		"perfecto", "entendido", "de acuerdo", "claro", "listo", "esta bien", "ah ok",
		"aja", "mmm", "ya", "ya vi", "enterado", "excelente", "genial", "orale",
	},
	whole:  true,
	yields: true,
}

var greetingMatcher = &phraseMatcher{
	name:   "greeting",
	intent: IntentGreeting,
	phrases: []string{
		"hola", "holi", "hello", "hi", "hey", "buenas", "buen dia", "buenos dias",
		"buenas tardes", "buenas noches", "que tal", "saludos", "hola buenas",
		"hola buenos dias", "hola buenas tardes", "hola buenas noches", "como estas",
	},
	maxTail: 4,
	yields:  true,
}

// StripGreeting removes leading greeting phrases and filler, returning what
// the customer actually asked. "" means the message was only a greeting.
func StripGreeting(normalized string) string {
	rest := cleanText(normalized)
	for rest != "" {
		p, ok := leadingPhrase(rest, greetingMatcher.phrases)
		if !ok {
			p, ok = leadingPhrase(rest, filler)
			if !ok {
				break
			}
		}
		rest = strings.TrimSpace(rest[len(p):])
	}
	return rest
}

// BuiltinMatchers returns the conversational matchers in priority order.
func BuiltinMatchers() []Matcher {
	return []Matcher{
		&phraseMatcher{
			name:   "opt_out",
			intent: IntentOptOut,
			phrases: []string{
				"no me interesa", "ya no me interesa", "ya no quiero", "no gracias ya no",
				"dejen de escribir", "deja de escribir", "dejen de escribirme", "no me escriban",
				"no me molesten", "no molesten", "stop", "darme de baja", "dar de baja",
				"ya lo compre", "ya compre en otro lado", "ya no necesito",
			},
			maxTail:      -1,
			unlessBuying: true,
		},
		&phraseMatcher{
			name:   "handoff",
			intent: IntentHandoff,
			phrases: []string{
				"hablar con una persona", "hablar con un humano", "hablar con alguien",
				"hablar con un asesor", "hablar con un agente", "hablar con un vendedor",
				"hablar con una asesora", "hablar con el encargado", "hablar con el gerente",
				"quiero un asesor", "quiero una persona", "pasame con", "comunicame con",
				"atencion humana", "persona real", "un humano", "asesor humano",
				"me pueden llamar", "me puedes llamar", "marquenme", "llamenme",
			},
			maxTail: -1,
		},
		&phraseMatcher{
			name:   "frustration",
			intent: IntentFrustration,
			phrases: []string{
				"no entiendes", "no me entiendes", "no me estas entendiendo", "ya te dije",
				"ya les dije", "eres un robot", "eres un bot", "que mal servicio", "pesimo servicio",
				"pesimo", "no sirves", "no sirve este bot", "otra vez lo mismo", "me estas repitiendo",
				"no me estas ayudando", "no me ayudas", "que absurdo", "estoy harto", "estoy harta",
				"que fastidio", "no contestas lo que pregunto",
			},
			maxTail: -1,
		},
		buyingGuard{},
		acknowledgmentMatcher,
		greetingMatcher,
		&phraseMatcher{
			name:   "thanks",
			intent: IntentThanks,
			phrases: []string{
				"gracias", "muchas gracias", "mil gracias", "te agradezco", "le agradezco",
				"muy amable", "thanks", "thank you", "gracias por la informacion",
				"gracias por todo", "gracias por tu ayuda", "gracias por su ayuda",
			},
			whole:  true,
			yields: true,
		},
		&phraseMatcher{
			name:   "farewell",
			intent: IntentFarewell,
			phrases: []string{
				"adios", "bye", "hasta luego", "hasta pronto", "hasta manana", "nos vemos",
				"chao", "chau", "cuidate", "que tenga buen dia", "bonito dia", "buena noche",
				"que este bien", "gracias adios", "gracias hasta luego",
			},
			whole:  true,
			yields: true,
		},
		&phraseMatcher{
			name:   "deferral",
			intent: IntentDeferral,
			phrases: []string{
				"lo pienso", "lo voy a pensar", "lo pensare", "dejame pensarlo", "deja lo pienso",
				"luego te aviso", "despues te aviso", "te aviso", "le aviso", "luego le aviso",
				"lo consulto", "lo checo", "lo reviso", "mas adelante", "otro dia",
				"despues te escribo", "luego te escribo", "lo platico con", "lo comento con",
				"en la quincena", "cuando me paguen",
			},
			maxTail: -1,
			yields:  true,
		},
	}
}

// sortByPriority orders definitions by descending priority, then key.
func sortByPriority(defs []types.IntentDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority > defs[j].Priority
		}
		return defs[i].Key < defs[j].Key
	})
}
