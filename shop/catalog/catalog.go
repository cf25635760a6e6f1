// Package catalog is the static product list: products, their sizes and prices.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/money"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// MaxProductIDLen keeps product ids short enough for callback payloads.
const MaxProductIDLen = 16

// MaxButtonKeyLen bounds the JSON-escaped product id plus size label. Both
// travel in every size button, and the button must fit Telegram's 64-byte
// callback data.
const MaxButtonKeyLen = 22

// Size is one purchasable unit of a product. Price is final; Discount is the
// percentage shown next to it.
type Size struct {
	Label    string
	Price    money.Cents
	Discount int
}

// Product is a catalog entry with its sizes in display order.
type Product struct {
	ID    string
	Name  string
	Sizes []Size
}

// Size looks up a size by label.
func (p Product) Size(label string) (Size, bool) {
	for _, s := range p.Sizes {
		if s.Label == label {
			return s, true
		}
	}
	return Size{}, false
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	currency string
	products []Product
	byID     map[string]int
}

// New validates products and builds a catalog.
func New(products []Product, currency string) (*Catalog, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, domain.Validation("currency", "empty")
	}
	if len(products) == 0 {
		return nil, domain.Validation("products", "catalog is empty")
	}
	c := &Catalog{currency: currency, byID: make(map[string]int, len(products))}
	for _, p := range products {
		if err := validateProduct(p); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, domain.Validation("product", fmt.Sprintf("duplicate id %q", p.ID))
		}
		cp := p
		cp.Sizes = append([]Size(nil), p.Sizes...)
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, cp)
	}
	return c, nil
}

func validateProduct(p Product) error {
	switch {
	case p.ID == "":
		return domain.Validation("product", "empty id")
	case len(p.ID) > MaxProductIDLen:
		return domain.Validation("product", fmt.Sprintf("id %q longer than %d", p.ID, MaxProductIDLen))
	case strings.ContainsAny(p.ID, "|\f \t\n"):
		return domain.Validation("product", fmt.Sprintf("id %q contains a separator", p.ID))
	case p.Name == "":
		return domain.Validation("product", fmt.Sprintf("%q has no name", p.ID))
	case len(p.Sizes) == 0:
		return domain.Validation("product", fmt.Sprintf("%q has no sizes", p.ID))
	}
	seen := make(map[string]struct{}, len(p.Sizes))
	for _, s := range p.Sizes {
		if strings.TrimSpace(s.Label) == "" {
			return domain.Validation("size", fmt.Sprintf("%q has an empty label", p.ID))
		}
		if _, dup := seen[s.Label]; dup {
			return domain.Validation("size", fmt.Sprintf("%q repeats %q", p.ID, s.Label))
		}
		seen[s.Label] = struct{}{}
		if n := escapedLen(p.ID) + escapedLen(s.Label); n > MaxButtonKeyLen {
			return domain.Validation("size", fmt.Sprintf("%s %s: id and label take %d bytes, limit %d", p.ID, s.Label, n, MaxButtonKeyLen))
		}
		if s.Price <= 0 {
			return domain.Validation("price", fmt.Sprintf("%s %s must be positive", p.ID, s.Label))
		}
		if s.Discount < 0 || s.Discount >= 100 {
			return domain.Validation("discount", fmt.Sprintf("%s %s out of range", p.ID, s.Label))
		}
	}
	return nil
}

// escapedLen is the length of v inside a JSON string literal.
func escapedLen(v string) int {
	b, err := json.Marshal(v)
	if err != nil {
		return len(v)
	}
	return len(b) - 2
}

type fileSize struct {
	Label    string `yaml:"label"`
	Price    string `yaml:"price"`
	Discount int    `yaml:"discount"`
}

type fileProduct struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Sizes []fileSize `yaml:"sizes"`
}

type file struct {
	Currency string        `yaml:"currency"`
	Products []fileProduct `yaml:"products"`
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	products := make([]Product, 0, len(f.Products))
	for _, fp := range f.Products {
		p := Product{ID: fp.ID, Name: fp.Name}
		for _, fs := range fp.Sizes {
			price, err := money.ParseCents(fs.Price)
			if err != nil {
				return nil, fmt.Errorf("catalog: %s %s: %w", fp.ID, fs.Label, err)
			}
			p.Sizes = append(p.Sizes, Size{Label: fs.Label, Price: price, Discount: fs.Discount})
		}
		products = append(products, p)
	}
	return New(products, f.Currency)
}

// Load reads a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
	}
	return c
}

// Currency returns the ISO code all prices are expressed in.
func (c *Catalog) Currency() string { return c.currency }

// Products returns the products in display order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	for i, p := range c.products {
		out[i] = p
		out[i].Sizes = append([]Size(nil), p.Sizes...)
	}
	return out
}

// Product looks up a product by id.
func (c *Catalog) Product(id string) (Product, error) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, domain.NotFound("product", id)
	}
	p := c.products[i]
	p.Sizes = append([]Size(nil), p.Sizes...)
	return p, nil
}

// ListSizes returns the sizes of product in configured order.
func (c *Catalog) ListSizes(product string) ([]Size, error) {
	p, err := c.Product(product)
	if err != nil {
		return nil, err
	}
	return p.Sizes, nil
}

// PriceOf resolves the price of one (product, size) pair.
func (c *Catalog) PriceOf(product, size string) (money.Cents, error) {
	i, ok := c.byID[product]
	if !ok {
		return 0, domain.NotFound("product", product)
	}
	s, ok := c.products[i].Size(size)
	if !ok {
		return 0, domain.NotFound("size", product+" "+size)
	}
	return s.Price, nil
}
