package checkout

import (
	"fmt"
	"strings"

	"github.com/m3rciful/shopbot/shop/cart"
	"github.com/m3rciful/shopbot/shop/catalog"
	"github.com/m3rciful/shopbot/shop/money"
)

// Button is an inline button: a link when URL is set, otherwise Event is sent
// back to the machine when pressed.
type Button struct {
	Label string
	URL   string
	Event Event
}

// Reply is a transport-neutral answer. Menu asks the transport to show the
// main menu keyboard.
type Reply struct {
	Text   string
	Inline [][]Button
	Menu   bool
}

// Menu labels double as command aliases.
const (
	MenuShop     = "🛍 Shop"
	MenuCart     = "🛒 Cart"
	MenuOrders   = "📦 Orders"
	MenuInfo     = "ℹ️ Info"
	MenuContacts = "📞 Contacts"
	MenuCancel   = "❌ Cancel"
)

// MenuRows is the main keyboard layout.
func MenuRows() [][]string {
	return [][]string{
		{MenuShop, MenuCart},
		{MenuOrders, MenuInfo},
		{MenuContacts, MenuCancel},
	}
}

const (
	textUnknown       = "Unknown message. Use /shop to browse products or /cart to view your cart."
	textStale         = "This button is no longer active. Use /shop or /cart to continue."
	textFailure       = "Something went wrong. Please try again in a moment."
	textEmptyCart     = "Your cart is empty. Use /shop to add products."
	textProviderError = "The payment provider is not responding. Please try again in a moment or choose another method."
	textAskProof      = "Please send the transaction ID or a screenshot link here. After verification we'll confirm your order."
	textProofReminder = "Complete the payment using the button above, or press \"I've paid\" if you already did."
	textAskEmail      = "Thanks! Now send your email address for the receipt, or press Skip."
	textBadEmail      = "That doesn't look like an email address. Please send a valid one, or press Skip."
)

func unknownReply() Reply { return Reply{Text: textUnknown} }
func staleReply() Reply   { return Reply{Text: textStale} }
func failureReply() Reply { return Reply{Text: textFailure} }

func btn(label string, kind Kind, a Action) Button {
	return Button{Label: label, Event: Event{Kind: kind, Action: a}}
}

func sizeLabel(s catalog.Size, currency string) string {
	label := fmt.Sprintf("%s · %s", s.Label, s.Price.Format(currency))
	if s.Discount > 0 {
		label += fmt.Sprintf(" (-%d%%)", s.Discount)
	}
	return label
}

func cartText(lines []cart.Line, currency string) string {
	var b strings.Builder
	b.WriteString("🛒 Your cart:\n")
	for i, l := range lines {
		fmt.Fprintf(&b, "%d. %s %s: %s\n", i+1, l.ProductName, l.Size, l.Price.Format(currency))
	}
	fmt.Fprintf(&b, "💰 Total: %s", cart.SumLines(lines).Format(currency))
	return b.String()
}

func totalLine(total money.Cents, currency string) string {
	return "💰 Total: " + total.Format(currency)
}
