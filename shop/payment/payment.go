// Package payment defines the provider contracts used by checkout and the
// webhook receiver.
package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/m3rciful/shopbot/shop/domain"
)

// Checkout is what the customer receives after choosing a method: a hosted
// payment link, manual instructions or both.
type Checkout struct {
	URL          string
	ProviderRef  string
	Instructions string
}

// Provider creates checkouts for one payment method.
type Provider interface {
	Method() domain.Method
	Label() string
	CreateCheckout(ctx context.Context, order domain.Order) (Checkout, error)
	// AllowsManualConfirmation reports whether the customer may assert payment
	// by sending proof instead of waiting for a webhook.
	AllowsManualConfirmation() bool
}

// EventKind classifies a verified provider notification.
type EventKind string

const (
	// EventCaptured means the money was collected.
	EventCaptured EventKind = "captured"
	// EventApproved means the buyer approved and the payment must be captured.
	EventApproved EventKind = "approved"
	// EventIgnored is any other notification type.
	EventIgnored EventKind = "ignored"
)

// Event is a verified, provider-neutral notification.
type Event struct {
	Method      domain.Method
	Kind        EventKind
	Type        string
	OrderID     string
	ProviderRef string
	Reference   string
}

// Verifier authenticates and parses a webhook request. body is the already
// read request body. Authentication failures wrap domain.ErrInvalidSignature.
type Verifier interface {
	Parse(r *http.Request, body []byte) (Event, error)
}

// Capturer completes an approved payment.
type Capturer interface {
	Capture(ctx context.Context, providerRef string) (Event, error)
}

// Links builds the customer-facing return URLs.
type Links struct {
	BaseURL string
}

// Success is where hosted checkouts redirect after payment.
func (l Links) Success(orderID string) string {
	return l.join("/payment/success", orderID)
}

// Cancel is where hosted checkouts redirect when the customer aborts.
func (l Links) Cancel(orderID string) string {
	return l.join("/payment/cancel", orderID)
}

func (l Links) join(path, orderID string) string {
	q := url.Values{"order_id": {orderID}}
	return strings.TrimRight(l.BaseURL, "/") + path + "?" + q.Encode()
}

// Manual is a method confirmed by the customer sending proof (bank transfer,
// direct PayPal payment).
type Manual struct {
	Instructions string
}

func (Manual) Method() domain.Method          { return domain.MethodManual }
func (Manual) Label() string                  { return "Bank transfer" }
func (Manual) AllowsManualConfirmation() bool { return true }

func (m Manual) CreateCheckout(_ context.Context, order domain.Order) (Checkout, error) {
	return Checkout{Instructions: strings.ReplaceAll(m.Instructions, "{order_id}", order.ID)}, nil
}

// Set is the ordered collection of enabled providers.
type Set struct {
	order     []domain.Method
	providers map[domain.Method]Provider
}

// NewSet keeps the first provider registered for each method.
func NewSet(providers ...Provider) *Set {
	s := &Set{providers: make(map[domain.Method]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := s.providers[p.Method()]; dup {
			continue
		}
		s.providers[p.Method()] = p
		s.order = append(s.order, p.Method())
	}
	return s
}

// Get returns the provider for m.
func (s *Set) Get(m domain.Method) (Provider, bool) {
	p, ok := s.providers[m]
	return p, ok
}

// List returns the providers in registration order.
func (s *Set) List() []Provider {
	out := make([]Provider, 0, len(s.order))
	for _, m := range s.order {
		out = append(out, s.providers[m])
	}
	return out
}

// Len is the number of enabled methods.
func (s *Set) Len() int { return len(s.order) }
