package specs

import "shadebot/internal/types"

// Slot names a required field of a product spec.
type Slot string

const (
	SlotProductType Slot = "product_type"
	SlotSize        Slot = "size"
	SlotWidth       Slot = "width"
	SlotLength      Slot = "length"
	SlotPercentage  Slot = "percentage"
)

// Missing returns the required slots not yet filled, in asking order.
// Quantity and color are always optional.
func Missing(spec types.ProductSpec) []Slot {
	var out []Slot
	switch spec.ProductType {
	case types.ProductRoll:
		if spec.Width == nil {
			out = append(out, SlotWidth)
		}
		if spec.Percentage == nil {
			out = append(out, SlotPercentage)
		}
	case types.ProductConfeccionada:
		if spec.Size == "" {
			out = append(out, SlotSize)
		}
	case types.ProductGroundCover:
		if spec.Width == nil {
			out = append(out, SlotWidth)
		}
	case types.ProductEdging:
		if spec.Length == nil {
			out = append(out, SlotLength)
		}
	case types.ProductAccessory:
	default:
		if spec.Size == "" {
			out = append(out, SlotProductType)
		}
	}
	return out
}

// Complete reports whether every required slot is filled.
func Complete(spec types.ProductSpec) bool {
	return spec.ProductType != types.ProductUnknown && len(Missing(spec)) == 0
}

var questions = map[types.ProductType]map[Slot]string{
	types.ProductRoll: {
		SlotWidth:      "¿De qué ancho necesitas el rollo? Manejamos 2.10 m y 4.20 m por 100 m de largo.",
		SlotPercentage: "¿Qué porcentaje de sombra buscas? Tenemos 35%, 50%, 70%, 80% y 90%.",
	},
	types.ProductConfeccionada: {
		SlotSize: "¿Qué medida necesitas? Escríbela como ancho x largo, por ejemplo 4x6.",
	},
	types.ProductGroundCover: {
		SlotWidth: "¿De qué ancho necesitas la malla antimaleza? Manejamos 1.05 m, 2.10 m y 4.20 m.",
	},
	types.ProductEdging: {
		SlotLength: "¿Cuántos metros de borde necesitas?",
	},
}

const productQuestion = "¿Buscas malla sombra confeccionada (lista para instalar) o por rollo?"

// NextQuestion phrases the clarifying question for the first missing slot.
// It returns false when nothing is missing.
func NextQuestion(spec types.ProductSpec) (string, bool) {
	missing := Missing(spec)
	if len(missing) == 0 {
		return "", false
	}
	if missing[0] == SlotProductType {
		return productQuestion, true
	}
	if q, ok := questions[spec.ProductType][missing[0]]; ok {
		return q, true
	}
	return productQuestion, true
}
