package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/money"
)

func TestDefaultSaffronPrices(t *testing.T) {
	c := Default()
	assert.Equal(t, "EUR", c.Currency())

	want := map[string]money.Cents{
		"1g": 800, "3g": 2400, "5g": 4000, "10g": 8000,
		"30g": 21600, "50g": 32000, "70g": 44800, "100g": 60000,
	}
	for size, price := range want {
		for i := 0; i < 3; i++ {
			got, err := c.PriceOf("saffron", size)
			require.NoError(t, err)
			assert.Equal(t, price, got, size)
		}
	}

	sizes, err := c.ListSizes("saffron")
	require.NoError(t, err)
	labels := make([]string, len(sizes))
	for i, s := range sizes {
		labels[i] = s.Label
	}
	assert.Equal(t, []string{"1g", "3g", "5g", "10g", "30g", "50g", "70g", "100g"}, labels)
	assert.Equal(t, 25, sizes[7].Discount)
}

func TestPriceOfUnknown(t *testing.T) {
	c := Default()
	_, err := c.PriceOf("saffron", "2g")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = c.PriceOf("truffle", "1g")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = c.ListSizes("truffle")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewValidates(t *testing.T) {
	ok := Product{ID: "tea", Name: "Tea", Sizes: []Size{{Label: "50g", Price: 500}}}
	cases := map[string][]Product{
		"duplicate id":  {ok, ok},
		"no sizes":      {{ID: "x", Name: "X"}},
		"zero price":    {{ID: "x", Name: "X", Sizes: []Size{{Label: "1", Price: 0}}}},
		"repeated size": {{ID: "x", Name: "X", Sizes: []Size{{Label: "1", Price: 1}, {Label: "1", Price: 2}}}},
		"bad discount":  {{ID: "x", Name: "X", Sizes: []Size{{Label: "1", Price: 1, Discount: 100}}}},
		"separator":     {{ID: "a|b", Name: "X", Sizes: []Size{{Label: "1", Price: 1}}}},
		"long id":       {{ID: "abcdefghijklmnopq", Name: "X", Sizes: []Size{{Label: "1", Price: 1}}}},
		"long label":    {{ID: "abcdefghijklmnop", Name: "X", Sizes: []Size{{Label: "1000 ml", Price: 1}}}},
		"escaped label": {{ID: "abcdefghijklmnop", Name: "X", Sizes: []Size{{Label: "<1kg>", Price: 1}}}},
	}
	for name, products := range cases {
		_, err := New(products, "EUR")
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}
	_, err := New([]Product{ok}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewAcceptsButtonKeyAtLimit(t *testing.T) {
	_, err := New([]Product{{ID: "abcdefghijklmnop", Name: "X", Sizes: []Size{{Label: "100 ml", Price: 1}}}}, "EUR")
	assert.NoError(t, err)
}

func TestParseRejectsOversizedLabel(t *testing.T) {
	_, err := Parse([]byte("currency: EUR\nproducts:\n  - id: essential_oils_x\n    name: X\n    sizes:\n      - {label: 1000 ml, price: \"9.00\"}\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCatalogIsImmutable(t *testing.T) {
	c := Default()
	p, err := c.Product("saffron")
	require.NoError(t, err)
	p.Sizes[0].Price = 1

	got, err := c.PriceOf("saffron", "1g")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(800), got)
}

func TestParseRejectsBadPrice(t *testing.T) {
	_, err := Parse([]byte("currency: EUR\nproducts:\n  - id: x\n    name: X\n    sizes:\n      - {label: 1g, price: abc}\n"))
	assert.Error(t, err)
}
