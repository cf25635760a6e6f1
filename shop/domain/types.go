// Package domain holds the storefront data model shared by every shop package.
package domain

import (
	"time"

	"github.com/m3rciful/shopbot/shop/money"
)

// ConversationID identifies a chat; it is the Telegram chat id.
type ConversationID int64

// Stage tells how the next free-text message of a conversation is interpreted.
type Stage string

const (
	StageIdle                        Stage = "idle"
	StageBrowsing                    Stage = "browsing"
	StageCartReview                  Stage = "cart_review"
	StageAwaitingPaymentChoice       Stage = "awaiting_payment_choice"
	StageAwaitingPaymentConfirmation Stage = "awaiting_payment_confirmation"
	StageAwaitingShipping            Stage = "awaiting_shipping"
	StageAwaitingContactEmail        Stage = "awaiting_contact_email"
)

// Stages lists every stage in flow order.
func Stages() []Stage {
	return []Stage{
		StageIdle,
		StageBrowsing,
		StageCartReview,
		StageAwaitingPaymentChoice,
		StageAwaitingPaymentConfirmation,
		StageAwaitingShipping,
		StageAwaitingContactEmail,
	}
}

// CartItem is one selected (product, size) pair.
type CartItem struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
}

// Session is the per-conversation state: stage, cart and order references.
// PendingOrderID is the last checkout awaiting payment; menu navigation keeps
// it and only a new checkout or the payment itself replaces it.
type Session struct {
	ConversationID  ConversationID `json:"conversation_id"`
	Stage           Stage          `json:"stage"`
	Cart            []CartItem     `json:"cart"`
	BrowsingProduct string         `json:"browsing_product,omitempty"`
	ActiveOrderID   string         `json:"active_order_id,omitempty"`
	PendingOrderID  string         `json:"pending_order_id,omitempty"`
	ProofRequested  bool           `json:"proof_requested,omitempty"`
	OrderIDs        []string       `json:"order_ids,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewSession returns an idle session with an empty cart.
func NewSession(id ConversationID) Session {
	return Session{ConversationID: id, Stage: StageIdle}
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	s.Cart = append([]CartItem(nil), s.Cart...)
	s.OrderIDs = append([]string(nil), s.OrderIDs...)
	return s
}

// ResetTransient returns the conversation to idle without touching the cart,
// orders or the pending checkout.
func (s *Session) ResetTransient() {
	s.Stage = StageIdle
	s.BrowsingProduct = ""
	s.ActiveOrderID = ""
	s.ProofRequested = false
}

// RemoveOrdered drops one cart item per order line, so items added after the
// checkout started stay in the cart.
func (s *Session) RemoveOrdered(lines []OrderLine) {
	paid := make(map[CartItem]int, len(lines))
	for _, l := range lines {
		paid[CartItem{ProductID: l.ProductID, Size: l.Size}]++
	}
	kept := make([]CartItem, 0, len(s.Cart))
	for _, item := range s.Cart {
		if paid[item] > 0 {
			paid[item]--
			continue
		}
		kept = append(kept, item)
	}
	s.Cart = kept
}

// PaymentStatus is unpaid or paid.
type PaymentStatus string

const (
	StatusUnpaid PaymentStatus = "unpaid"
	StatusPaid   PaymentStatus = "paid"
)

// Method identifies how an order was paid.
type Method string

const (
	MethodNone   Method = "none"
	MethodPayPal Method = "paypal"
	MethodStripe Method = "stripe"
	MethodManual Method = "manual"
)

// ParseMethod maps a string to a known Method.
func ParseMethod(s string) (Method, bool) {
	switch m := Method(s); m {
	case MethodPayPal, MethodStripe, MethodManual:
		return m, true
	}
	return MethodNone, false
}

// OrderLine is a frozen cart line.
type OrderLine struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Size        string      `json:"size"`
	Price       money.Cents `json:"price"`
}

// Confirmation records how a payment was confirmed.
type Confirmation struct {
	ProviderRef string    `json:"provider_ref,omitempty"`
	Proof       string    `json:"proof,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Shipping is the free-text delivery address.
type Shipping struct {
	Text       string    `json:"text"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Order is one checkout attempt. Total equals the sum of Lines prices and
// never changes after creation.
type Order struct {
	ID             string         `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	Lines          []OrderLine    `json:"lines"`
	Total          money.Cents    `json:"total"`
	Currency       string         `json:"currency"`
	CreatedAt      time.Time      `json:"created_at"`
	Status         PaymentStatus  `json:"status"`
	Method         Method         `json:"method"`
	ProviderRef    string         `json:"provider_ref,omitempty"`
	Confirmation   *Confirmation  `json:"confirmation,omitempty"`
	Shipping       *Shipping      `json:"shipping,omitempty"`
	ContactEmail   string         `json:"contact_email,omitempty"`
	EmailSkipped   bool           `json:"email_skipped,omitempty"`
	ReceiptSentAt  *time.Time     `json:"receipt_sent_at,omitempty"`
}

// Paid reports whether the order has been marked paid.
func (o Order) Paid() bool { return o.Status == StatusPaid }

// Clone returns a deep copy.
func (o Order) Clone() Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	if o.Confirmation != nil {
		c := *o.Confirmation
		o.Confirmation = &c
	}
	if o.Shipping != nil {
		s := *o.Shipping
		o.Shipping = &s
	}
	if o.ReceiptSentAt != nil {
		t := *o.ReceiptSentAt
		o.ReceiptSentAt = &t
	}
	return o
}
