// Package money represents amounts as integer minor units.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is an amount in minor currency units.
type Cents int64

var symbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
}

// ParseCents converts a decimal amount in major units ("80.00") to cents,
// rounding half away from zero.
func ParseCents(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("money: parse %q: not finite", s)
	}
	return Cents(math.Round(f * 100)), nil
}

// Decimal renders c as a plain two-decimal string ("80.00").
func (c Cents) Decimal() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Format renders c with the currency symbol ("80.00€"); unknown codes are
// appended with a space ("80.00 CHF").
func (c Cents) Format(currency string) string {
	code := strings.ToUpper(currency)
	if sym, ok := symbols[code]; ok {
		if code == "EUR" {
			return c.Decimal() + sym
		}
		return sym + c.Decimal()
	}
	if code == "" {
		return c.Decimal()
	}
	return c.Decimal() + " " + code
}

// Sum adds all amounts.
func Sum(amounts ...Cents) Cents {
	var total Cents
	for _, a := range amounts {
		total += a
	}
	return total
}
