package dimension

import "strings"

// Reference maps a comparison object to an estimated size.
type Reference struct {
	Phrases []string
	Label   string // with article, for display
	Width   float64
	Height  float64
}

// References is ordered most specific first; the first phrase found wins.
var References = []Reference{
	{Phrases: []string{"cochera doble", "garage doble", "cochera para dos", "cochera de dos"}, Label: "una cochera doble", Width: 6, Height: 6},
	{Phrases: []string{"cochera", "garage", "garaje", "estacionamiento"}, Label: "una cochera", Width: 4, Height: 6},
	{Phrases: []string{"camioneta", "pickup", "troca"}, Label: "una camioneta", Width: 3, Height: 6},
	{Phrases: []string{"carro", "auto", "coche", "vehiculo"}, Label: "un carro", Width: 3, Height: 5},
	{Phrases: []string{"patio chico", "patio pequeno", "patiecito"}, Label: "un patio chico", Width: 4, Height: 4},
	{Phrases: []string{"patio grande"}, Label: "un patio grande", Width: 8, Height: 10},
	{Phrases: []string{"patio mediano", "patio"}, Label: "un patio mediano", Width: 6, Height: 6},
	{Phrases: []string{"terraza", "balcon"}, Label: "una terraza", Width: 4, Height: 5},
	{Phrases: []string{"ventana"}, Label: "una ventana", Width: 2, Height: 2},
}

// LookupReference finds a comparison object in normalized text and returns
// its estimated dimension.
func LookupReference(text string) (Dimension, bool) {
	padded := " " + text + " "
	for _, ref := range References {
		for _, phrase := range ref.Phrases {
			if containsWord(padded, phrase) {
				return Dimension{Width: ref.Width, Height: ref.Height, Reference: ref.Label}, true
			}
		}
	}
	return Dimension{}, false
}

func containsWord(padded, phrase string) bool {
	idx := strings.Index(padded, phrase)
	for idx >= 0 {
		before := padded[idx-1]
		end := idx + len(phrase)
		if !isLetterByte(before) && (end >= len(padded) || !isLetterByte(padded[end])) {
			return true
		}
		next := strings.Index(padded[idx+1:], phrase)
		if next < 0 {
			break
		}
		idx += next + 1
	}
	return false
}

func isLetterByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || b >= 0x80
}
