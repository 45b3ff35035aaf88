package dimension

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadebot/internal/types"
)

func testCatalog() []types.CatalogSize {
	return []types.CatalogSize{
		{Width: 4, Height: 6, Price: 820},
		{Width: 2, Height: 2, Price: 180},
		{Width: 3, Height: 4, Price: 420},
		{Width: 4, Height: 4, Price: 560},
		{Width: 3, Height: 5, Price: 520},
		{Width: 5, Height: 3, Price: 540}, // same area as 3x5, pricier
		{Width: 6, Height: 10, Price: 1850},
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		w, h float64
	}{
		{"3x4", 3, 4},
		{"quiero una de 3 x 4", 3, 4},
		{"3*4", 3, 4},
		{"me urge una de 6 por 4", 6, 4},
		{"3.5x4", 3.5, 4},
		{"3,5 x 4 metros", 3.5, 4},
		{"4mts x 6mts", 4, 6},
		{"10x27", 10, 27},
		{"6 metros de largo por 4 de ancho", 4, 6},
		{"4 de ancho x 6 de largo", 4, 6},
		{"medida 3 4", 3, 4},
		{"de 3:4 porfa", 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := Parse(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.w, d.Width)
			assert.Equal(t, tt.h, d.Height)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{
		"hola",
		"cuanto cuesta",
		"paso a las 3:30 pm",
		"a las 5:30",
		"puedo pasar a recoger hoy a las 5:30?",
		"abren a las 9:00",
		"paso como a las 4:5",
		"te veo 12:45",
		"un rollo de 100 2 piezas",
		"al 80%",
	} {
		_, ok := Parse(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestKey_OrientationInsensitive(t *testing.T) {
	assert.Equal(t, "10x27", Key(Dimension{Width: 27, Height: 10}))
	assert.Equal(t, Key(Dimension{Width: 4, Height: 6}), Key(Dimension{Width: 6, Height: 4}))
	assert.Equal(t, "3.5x4", Key(Dimension{Width: 4, Height: 3.5}))
}

func TestResolve_ExactOrientationSymmetric(t *testing.T) {
	r := NewResolver(testCatalog())

	for _, d := range []Dimension{{Width: 4, Height: 6}, {Width: 6, Height: 4}} {
		v := r.Resolve(d)
		require.Equal(t, KindExact, v.Kind)
		assert.Equal(t, "4x6", v.Match.SizeStr, "catalog orientation is used for display")
	}
}

func TestResolve_ContainingPicksSmallestThenCheapest(t *testing.T) {
	r := NewResolver(testCatalog())

	v := r.Resolve(Dimension{Width: 3, Height: 3})
	require.Equal(t, KindContaining, v.Kind)
	assert.Equal(t, "3x4", v.Match.SizeStr)

	v = r.Resolve(Dimension{Width: 2, Height: 5})
	require.Equal(t, KindContaining, v.Kind)
	assert.Equal(t, "3x5", v.Match.SizeStr, "equal area, lower price wins")
}

func TestResolve_Oversized(t *testing.T) {
	r := NewResolver(testCatalog())

	v := r.Resolve(Dimension{Width: 10, Height: 27})
	require.Equal(t, KindOversized, v.Kind)
	require.NotNil(t, v.Largest)
	assert.Equal(t, "6x10", v.Largest.SizeStr)
	assert.Equal(t, "10x27", v.Key)

	// area fits but no entry covers both sides, in either orientation
	for _, d := range []Dimension{{Width: 2, Height: 12}, {Width: 1, Height: 12}, {Width: 12, Height: 1}} {
		assert.Equal(t, KindOversized, r.Resolve(d).Kind, Key(d))
	}
	assert.Equal(t, KindExact, r.Resolve(Dimension{Width: 10, Height: 6}).Kind)
}

func TestResolve_Fractional(t *testing.T) {
	r := NewResolver(testCatalog())

	v := r.Resolve(Dimension{Width: 3.5, Height: 4})
	require.Equal(t, KindFractional, v.Kind)
	var got []string
	for _, a := range v.Alternatives {
		got = append(got, a.SizeStr)
	}
	assert.Equal(t, []string{"3x4", "4x4"}, got)
}

func TestResolve_Invalid(t *testing.T) {
	r := NewResolver(testCatalog())
	assert.Equal(t, KindInvalid, r.Resolve(Dimension{Width: 0, Height: 4}).Kind)
	assert.Equal(t, KindInvalid, NewResolver(nil).Resolve(Dimension{Width: 3, Height: 4}).Kind)
}

func TestLookupReference(t *testing.T) {
	d, ok := LookupReference("la quiero para mi cochera")
	require.True(t, ok)
	assert.Equal(t, 4.0, d.Width)
	assert.Equal(t, 6.0, d.Height)
	assert.Equal(t, "una cochera", d.Reference)

	d, ok = LookupReference("para tapar el patio grande")
	require.True(t, ok)
	assert.Equal(t, "un patio grande", d.Reference)

	_, ok = LookupReference("es automatico")
	assert.False(t, ok, "word boundaries are respected")
}

func TestDescribe(t *testing.T) {
	r := NewResolver(testCatalog())

	exact := Describe(r.Resolve(Dimension{Width: 3, Height: 4}), false)
	assert.Contains(t, exact, "3x4")
	assert.Contains(t, exact, "$420")

	over := Describe(r.Resolve(Dimension{Width: 10, Height: 27}), false)
	assert.Contains(t, over, "fabricación especial")
	assert.NotContains(t, strings.ToLower(over), "rollo")

	overRolls := Describe(r.Resolve(Dimension{Width: 10, Height: 27}), true)
	assert.Contains(t, overRolls, "rollos")

	ref, _ := LookupReference("cochera")
	withRef := Describe(r.Resolve(ref), false)
	assert.Contains(t, withRef, "una cochera")
	assert.NotContains(t, withRef, "mide", "never asks the customer to measure")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$420", FormatPrice(420))
	assert.Equal(t, "$1,850", FormatPrice(1850))
	assert.Equal(t, "$1,234,567", FormatPrice(1234567))
}

func TestParseAll(t *testing.T) {
	got := ParseAll("cuanto la de 3x4, la de 4 x 6 y otra de 6x4")
	require.Len(t, got, 2)
	assert.Equal(t, "3x4", Key(got[0]))
	assert.Equal(t, "4x6", Key(got[1]))

	assert.Empty(t, ParseAll("hola"))
}
