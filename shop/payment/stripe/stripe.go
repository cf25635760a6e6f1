// Package stripe takes card payments through Stripe Checkout Sessions.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/payment"
)

const (
	eventSessionCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceded = "checkout.session.async_payment_succeeded"
	signatureHeader           = "Stripe-Signature"
)

// Config holds the Stripe credentials and endpoints.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Links         payment.Links
	HTTPClient    *http.Client
	// APIURL overrides https://api.stripe.com, for tests.
	APIURL string
	// Tolerance bounds the accepted webhook timestamp skew; 0 uses the library default.
	Tolerance time.Duration
}

// Provider implements payment.Provider and payment.Verifier.
type Provider struct {
	sessions      session.Client
	webhookSecret string
	links         payment.Links
	tolerance     time.Duration
}

// New builds the provider; SecretKey is required.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, domain.MissingConfig("STRIPE_SECRET_KEY")
	}
	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelNull},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripeapi.String(cfg.APIURL)
	}
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)
	return &Provider{
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		links:         cfg.Links,
		tolerance:     cfg.Tolerance,
	}, nil
}

func (p *Provider) Method() domain.Method          { return domain.MethodStripe }
func (p *Provider) Label() string                  { return "Card (Stripe)" }
func (p *Provider) AllowsManualConfirmation() bool { return false }

// CreateCheckout opens a payment-mode Checkout Session with one line item per
// order line.
func (p *Provider) CreateCheckout(ctx context.Context, order domain.Order) (payment.Checkout, error) {
	currency := strings.ToLower(order.Currency)
	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(p.links.Success(order.ID)),
		CancelURL:         stripeapi.String(p.links.Cancel(order.ID)),
		ClientReferenceID: stripeapi.String(order.ID),
	}
	for _, l := range order.Lines {
		params.LineItems = append(params.LineItems, &stripeapi.CheckoutSessionLineItemParams{
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency: stripeapi.String(currency),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(l.ProductName + " " + l.Size),
				},
				UnitAmount: stripeapi.Int64(int64(l.Price)),
			},
			Quantity: stripeapi.Int64(1),
		})
	}
	params.AddMetadata("order_id", order.ID)
	params.AddMetadata("chat_id", strconv.FormatInt(int64(order.ConversationID), 10))
	params.Context = ctx

	start := time.Now()
	s, err := p.sessions.New(params)
	if err != nil {
		logger.Error(ctx, logger.CompStripe, "checkout.create", logger.OrderID(order.ID), slog.Duration("duration", time.Since(start)), logger.Err(err))
		return payment.Checkout{}, domain.Provider("stripe", err)
	}
	logger.Info(ctx, logger.CompStripe, "checkout.create",
		logger.OrderID(order.ID),
		slog.String("provider_ref", s.ID),
		slog.Duration("duration", time.Since(start)),
	)
	return payment.Checkout{URL: s.URL, ProviderRef: s.ID}, nil
}

// Parse verifies the Stripe-Signature header and maps paid checkout sessions
// to captured events.
func (p *Provider) Parse(r *http.Request, body []byte) (payment.Event, error) {
	if p.webhookSecret == "" {
		return payment.Event{}, domain.Signature("stripe", domain.MissingConfig("STRIPE_ENDPOINT_SECRET"))
	}
	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	if p.tolerance > 0 {
		opts.Tolerance = p.tolerance
	}
	evt, err := webhook.ConstructEventWithOptions(body, r.Header.Get(signatureHeader), p.webhookSecret, opts)
	if err != nil {
		return payment.Event{}, domain.Signature("stripe", err)
	}

	out := payment.Event{Method: domain.MethodStripe, Kind: payment.EventIgnored, Type: string(evt.Type)}
	switch out.Type {
	case eventSessionCompleted, eventAsyncPaymentSucceded:
	default:
		return out, nil
	}
	if evt.Data == nil {
		return out, fmt.Errorf("stripe: event %s without data", evt.ID)
	}
	var s stripeapi.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
		return out, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	out.ProviderRef = s.ID
	out.OrderID = s.Metadata["order_id"]
	if out.OrderID == "" {
		out.OrderID = s.ClientReferenceID
	}
	if s.PaymentIntent != nil {
		out.Reference = s.PaymentIntent.ID
	}
	if s.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid {
		out.Kind = payment.EventCaptured
	}
	return out, nil
}
