package dimension

import (
	"math"
	"sort"

	"shadebot/internal/logging"
	"shadebot/internal/types"
)

// Kind classifies how a requested size relates to the catalog.
type Kind string

const (
	KindExact      Kind = "exact"
	KindContaining Kind = "containing"
	KindOversized  Kind = "oversized"
	KindFractional Kind = "fractional"
	KindInvalid    Kind = "invalid"
)

// Verdict is the result of matching a dimension against the catalog.
type Verdict struct {
	Kind      Kind
	Requested Dimension
	Key       string

	// Match is the exact or smallest covering entry.
	Match *types.CatalogSize
	// Alternatives are whole-meter options offered for fractional requests.
	Alternatives []types.CatalogSize
	// Largest is the biggest stock entry, reported with oversized verdicts.
	Largest *types.CatalogSize
}

// Resolver matches dimensions against a fixed, area-ordered catalog.
type Resolver struct {
	sizes []types.CatalogSize
}

// NewResolver copies sizes and orders them by area ascending.
func NewResolver(sizes []types.CatalogSize) *Resolver {
	out := make([]types.CatalogSize, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, s.Normalize())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Area != out[j].Area {
			return out[i].Area < out[j].Area
		}
		return out[i].Price < out[j].Price
	})
	return &Resolver{sizes: out}
}

// Sizes returns the ordered catalog.
func (r *Resolver) Sizes() []types.CatalogSize {
	return r.sizes
}

// Resolve classifies d. Matching is orientation-insensitive; the catalog's own
// orientation is kept for display. A size is oversized when no entry covers
// both sides, whatever its area.
func (r *Resolver) Resolve(d Dimension) Verdict {
	v := Verdict{Requested: d, Key: Key(d)}

	if d.Width <= 0 || d.Height <= 0 || len(r.sizes) == 0 {
		v.Kind = KindInvalid
		return v
	}

	covering := r.smallestCovering(d)
	if covering == nil {
		largest := r.sizes[len(r.sizes)-1]
		v.Kind = KindOversized
		v.Largest = &largest
		logging.DimensionDebug("oversized request %s (largest %s)", v.Key, largest.SizeStr)
		return v
	}

	if !d.IsWhole() {
		v.Kind = KindFractional
		v.Alternatives = r.wholeAlternatives(d)
		if len(v.Alternatives) == 0 {
			v.Alternatives = []types.CatalogSize{*covering}
		}
		logging.DimensionDebug("fractional request %s, %d alternatives", v.Key, len(v.Alternatives))
		return v
	}

	if exact := r.exact(d.Width, d.Height); exact != nil {
		v.Kind = KindExact
		v.Match = exact
		return v
	}

	v.Kind = KindContaining
	v.Match = covering
	logging.DimensionDebug("containing match %s -> %s", v.Key, covering.SizeStr)
	return v
}

func (r *Resolver) exact(w, h float64) *types.CatalogSize {
	for i := range r.sizes {
		s := r.sizes[i]
		if (near(s.Width, w) && near(s.Height, h)) || (near(s.Width, h) && near(s.Height, w)) {
			return &s
		}
	}
	return nil
}

// smallestCovering picks the entry that fully covers d with the smallest
// area, then the smallest price.
func (r *Resolver) smallestCovering(d Dimension) *types.CatalogSize {
	var best *types.CatalogSize
	for i := range r.sizes {
		s := r.sizes[i]
		if !covers(s, d) {
			continue
		}
		if best == nil || s.Area < best.Area || (s.Area == best.Area && s.Price < best.Price) {
			cp := s
			best = &cp
		}
	}
	return best
}

func covers(s types.CatalogSize, d Dimension) bool {
	w, h := d.Width, d.Height
	return (s.Width >= w-eps && s.Height >= h-eps) || (s.Width >= h-eps && s.Height >= w-eps)
}

// wholeAlternatives returns the floor/ceil combinations of d that exist in stock.
func (r *Resolver) wholeAlternatives(d Dimension) []types.CatalogSize {
	ws := wholeNeighbors(d.Width)
	hs := wholeNeighbors(d.Height)

	seen := make(map[string]bool)
	var out []types.CatalogSize
	for _, w := range ws {
		for _, h := range hs {
			if w <= 0 || h <= 0 {
				continue
			}
			s := r.exact(w, h)
			if s == nil || seen[s.SizeStr] {
				continue
			}
			seen[s.SizeStr] = true
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Area < out[j].Area })
	return out
}

func wholeNeighbors(v float64) []float64 {
	f, c := math.Floor(v), math.Ceil(v)
	if f == c {
		return []float64{f}
	}
	return []float64{f, c}
}

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}
