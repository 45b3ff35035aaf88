package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const classifySystemPrompt = `Eres el clasificador de intenciones de una tienda de malla sombra en México.
Recibes el mensaje de un cliente y una lista cerrada de intenciones.
Responde SOLO con un objeto JSON, sin markdown:
{"intent": "<clave de la lista o unknown>", "confidence": <0.0-1.0>, "reasoning": "<una frase>"}
Si ninguna intención aplica con claridad usa "unknown" con confianza baja.`

const edgeCaseSystemPrompt = `Analizas mensajes de clientes de una tienda de malla sombra.
Decide si el mensaje es ininteligible (no se puede entender qué quiere) o complejo
(requiere a un especialista humano: proyectos estructurales, cálculos de ingeniería,
pedidos corporativos, temas legales). Un mensaje normal de compra no es complejo.
Responde SOLO con un objeto JSON, sin markdown:
{"is_unintelligible": <bool>, "is_complex": <bool>, "confidence": <0.0-1.0>, "reasoning": "<una frase>"}`

// jsonCompleter is what each provider adapter implements; the prompts and the
// reply decoding are shared.
type jsonCompleter interface {
	completeJSON(ctx context.Context, op, system, user string) (string, error)
}

func classifyPrompt(req ClassifyRequest) string {
	var sb strings.Builder
	sb.WriteString("Intenciones disponibles:\n")
	for _, def := range req.Intents {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Key, def.Description)
	}
	if req.Context.PreviousIntent != "" {
		fmt.Fprintf(&sb, "\nIntención anterior: %s\n", req.Context.PreviousIntent)
	}
	if req.Context.CampaignRef != "" {
		fmt.Fprintf(&sb, "Campaña activa: %s\n", req.Context.CampaignRef)
	}
	fmt.Fprintf(&sb, "\nMensaje del cliente:\n%s", req.Message)
	return sb.String()
}

func classifyWith(ctx context.Context, c jsonCompleter, req ClassifyRequest) (ClassifyResult, error) {
	raw, err := c.completeJSON(ctx, "classify", classifySystemPrompt, classifyPrompt(req))
	if err != nil {
		return ClassifyResult{}, err
	}
	var out ClassifyResult
	if err := decodeReply(raw, &out); err != nil {
		return ClassifyResult{}, err
	}
	if out.Intent == "" {
		return ClassifyResult{}, fmt.Errorf("%w: missing intent", ErrMalformedReply)
	}
	return out, nil
}

func detectWith(ctx context.Context, c jsonCompleter, message string) (EdgeCaseResult, error) {
	raw, err := c.completeJSON(ctx, "edge_case", edgeCaseSystemPrompt, "Mensaje del cliente:\n"+message)
	if err != nil {
		return EdgeCaseResult{}, err
	}
	var out EdgeCaseResult
	if err := decodeReply(raw, &out); err != nil {
		return EdgeCaseResult{}, err
	}
	return out, nil
}

// decodeReply unmarshals a JSON reply, tolerating a markdown code fence.
func decodeReply(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if s == "" {
		return fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}
