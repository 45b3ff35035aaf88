package dispatch

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultApology = "Disculpa, tuve un problema para procesar tu mensaje. ¿Me lo puedes repetir en otras palabras?"

	copyOptOut        = "Entendido, ya no te escribiremos. Si más adelante necesitas malla sombra, aquí estamos."
	copyHandoff       = "Claro, en un momento un asesor te atiende por este mismo chat."
	copyFrustration   = "Lamento mucho la confusión. Te comunico con un asesor para que te atienda personalmente."
	copyEdgeEscalate  = "Para darte una respuesta precisa te voy a comunicar con un asesor especializado. En breve te escribe."
	copyEdgeClarify   = "Disculpa, no logré entender tu mensaje. ¿Me lo puedes explicar de otra forma? Por ejemplo: \"malla de 4x6\" o \"rollo al 80%\"."
	copyClarifyEscal  = "Para no hacerte perder tiempo te comunico con un asesor que te ayude con los detalles."
	copyOversizeEscal = "Para la medida de %s m te comunico con un asesor que te cotice la fabricación especial."
	copyOversizeYes   = "¡Perfecto! Te comunico con un asesor para cotizar tu medida especial."
	copyAck           = "¡Perfecto! ¿Te puedo ayudar con algo más?"
	copyGreetingAgain = "¡Hola de nuevo! ¿En qué más te puedo ayudar?"
	copyThanks        = "¡Gracias a ti! Quedo a tus órdenes para lo que necesites."
	copyFarewell      = "¡Hasta pronto! Que tengas excelente día."
	copyDeferral      = "Claro, tómate tu tiempo. Cuando lo decidas, escríbeme y con gusto te ayudo a cerrar tu pedido."
	copyAskAgain      = "Solo para confirmar: "
	copyRepeatPrefix  = "Como te comenté, "
)

func greetingFor(persona, storeName string) string {
	if storeName == "" {
		return "¡Hola! Soy " + persona + ". ¿En qué te puedo ayudar? Manejamos malla sombra confeccionada, rollos, malla antimaleza y accesorios."
	}
	return "¡Hola! Soy " + persona + " de " + storeName + ". ¿En qué te puedo ayudar? Manejamos malla sombra confeccionada, rollos, malla antimaleza y accesorios."
}

// fill expands {persona} and {store} in configured responses.
func fill(text, persona, storeName string) string {
	return strings.NewReplacer("{persona}", persona, "{store}", storeName).Replace(text)
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
