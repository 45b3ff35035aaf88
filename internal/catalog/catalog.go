// Package catalog provides the product and size reference data the bot quotes
// from. Lookups return nil on a miss; "not found" is never an error.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"shadebot/internal/logging"
	"shadebot/internal/normalize"
	"shadebot/internal/types"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Family is a product line with shared copy and options.
type Family struct {
	Key         string            `yaml:"key"`
	Name        string            `yaml:"name"`
	ProductType types.ProductType `yaml:"product_type"`
	Description string            `yaml:"description"`
	Keywords    []string          `yaml:"keywords"`
	Colors      []string          `yaml:"colors"`
	Percentages []int             `yaml:"percentages"`
	Widths      []float64         `yaml:"widths"`
	RollLength  float64           `yaml:"roll_length"`
	PriceFrom   float64           `yaml:"price_from"`
	ImageURL    string            `yaml:"image_url"`
	CrossSell   []string          `yaml:"cross_sell"`
}

// Product is a single sellable item other than a made-to-size panel.
type Product struct {
	SKU      string   `yaml:"sku"`
	Name     string   `yaml:"name"`
	Family   string   `yaml:"family"`
	Price    float64  `yaml:"price"`
	Unit     string   `yaml:"unit"`
	Keywords []string `yaml:"keywords"`
	ImageURL string   `yaml:"image_url"`
}

// Source is the read-only catalog the dispatcher consumes.
type Source interface {
	// Sizes returns the fixed sizes for a product type ordered by area
	// ascending, or nil when the type has no fixed sizes.
	Sizes(ctx context.Context, productType types.ProductType) ([]types.CatalogSize, error)
	Families(ctx context.Context) ([]Family, error)
	// Family returns nil when no family matches name.
	Family(ctx context.Context, name string) (*Family, error)
	// Search returns products matching any keyword, best match first.
	Search(ctx context.Context, keywords []string) ([]Product, error)
}

type document struct {
	Sizes    []types.CatalogSize `yaml:"sizes"`
	Families []Family            `yaml:"families"`
	Products []Product           `yaml:"products"`
}

// Static is an in-memory Source loaded from YAML.
type Static struct {
	sizes    []types.CatalogSize
	families []Family
	products []Product
}

var _ Source = (*Static)(nil)

// Default returns the built-in catalog.
func Default() (*Static, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads a catalog from path. An empty path means the built-in catalog.
func LoadFile(path string) (*Static, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logging.Catalog("Loaded catalog from %s: %d sizes, %d families, %d products",
		path, len(c.sizes), len(c.families), len(c.products))
	return c, nil
}

// Parse builds a Static catalog from YAML.
func Parse(data []byte) (*Static, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	sizes := make([]types.CatalogSize, 0, len(doc.Sizes))
	for _, s := range doc.Sizes {
		if s.Width <= 0 || s.Height <= 0 {
			logging.CatalogWarn("Skipping catalog size with non-positive side: %+v", s)
			continue
		}
		sizes = append(sizes, s.Normalize())
	}
	sort.SliceStable(sizes, func(i, j int) bool {
		if sizes[i].Area != sizes[j].Area {
			return sizes[i].Area < sizes[j].Area
		}
		return sizes[i].Price < sizes[j].Price
	})

	return &Static{sizes: sizes, families: doc.Families, products: doc.Products}, nil
}

// Sizes implements Source. Only made-to-size panels have fixed sizes.
func (c *Static) Sizes(_ context.Context, productType types.ProductType) ([]types.CatalogSize, error) {
	if productType != types.ProductConfeccionada && productType != types.ProductUnknown {
		return nil, nil
	}
	out := make([]types.CatalogSize, len(c.sizes))
	copy(out, c.sizes)
	return out, nil
}

// Families implements Source.
func (c *Static) Families(_ context.Context) ([]Family, error) {
	out := make([]Family, len(c.families))
	copy(out, c.families)
	return out, nil
}

// Family implements Source. name may be a key, a display name or a keyword.
func (c *Static) Family(_ context.Context, name string) (*Family, error) {
	needle := normalize.Fold(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}
	for i := range c.families {
		f := c.families[i]
		if f.Key == needle || normalize.Fold(f.Name) == needle || string(f.ProductType) == needle {
			return &f, nil
		}
	}
	for i := range c.families {
		f := c.families[i]
		for _, kw := range f.Keywords {
			if normalize.Fold(kw) == needle {
				return &f, nil
			}
		}
	}
	return nil, nil
}

// ByType returns the first family selling pt, or nil.
func ByType(families []Family, pt types.ProductType) *Family {
	for i := range families {
		if families[i].ProductType == pt {
			f := families[i]
			return &f
		}
	}
	return nil
}

// Search implements Source. Products are scored by how many keywords hit
// their name or keyword list.
func (c *Static) Search(_ context.Context, keywords []string) ([]Product, error) {
	type scored struct {
		p     Product
		score int
	}
	var hits []scored
	for _, p := range c.products {
		hay := normalize.Fold(p.Name + " " + strings.Join(p.Keywords, " "))
		score := 0
		for _, kw := range keywords {
			kw = normalize.Fold(strings.TrimSpace(kw))
			if len(kw) < 3 {
				continue
			}
			if strings.Contains(hay, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{p, score})
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]Product, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out, nil
}
