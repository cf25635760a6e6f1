package orders

import (
	"fmt"
	"strings"

	"github.com/m3rciful/shopbot/shop/domain"
)

// Lines renders one line per snapshot item followed by the total.
func Lines(o domain.Order) string {
	var b strings.Builder
	for _, l := range o.Lines {
		fmt.Fprintf(&b, "• %s %s: %s\n", l.ProductName, l.Size, l.Price.Format(o.Currency))
	}
	fmt.Fprintf(&b, "💰 Total: %s", o.Total.Format(o.Currency))
	return b.String()
}

// StatusLabel is the short customer-facing state of an order.
func StatusLabel(o domain.Order) string {
	switch {
	case !o.Paid():
		return "awaiting payment"
	case o.Shipping == nil:
		return "paid, shipping details needed"
	case o.ReceiptSentAt == nil:
		return "paid, contact email needed"
	default:
		return "completed"
	}
}

// Summary is the multi-line description used in listings and operator messages.
func Summary(o domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s (%s)\n", o.ID, StatusLabel(o))
	b.WriteString(Lines(o))
	if o.Method != "" && o.Method != domain.MethodNone {
		fmt.Fprintf(&b, "\nMethod: %s", o.Method)
	}
	if o.Shipping != nil {
		fmt.Fprintf(&b, "\nShipping: %s", o.Shipping.Text)
	}
	if o.ContactEmail != "" {
		fmt.Fprintf(&b, "\nEmail: %s", o.ContactEmail)
	}
	return b.String()
}
