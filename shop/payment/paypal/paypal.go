// Package paypal takes payments through PayPal Orders v2: hosted approval,
// server-side capture and verified webhooks.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	paypalsdk "github.com/plutov/paypal/v4"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/payment"
)

const (
	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	eventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	verificationSuccess   = "SUCCESS"
)

// Config holds the PayPal credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	Sandbox      bool
	BrandName    string
	Links        payment.Links
	HTTPClient   *http.Client
	// APIBase overrides the sandbox/live endpoint, for tests.
	APIBase string
}

// Provider implements payment.Provider, payment.Verifier and payment.Capturer.
type Provider struct {
	client    *paypalsdk.Client
	webhookID string
	brand     string
	links     payment.Links
}

// New builds the provider; client id and secret are required.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, domain.MissingConfig("PAYPAL_CLIENT_ID")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, domain.MissingConfig("PAYPAL_CLIENT_SECRET")
	}
	base := cfg.APIBase
	if base == "" {
		base = paypalsdk.APIBaseLive
		if cfg.Sandbox {
			base = paypalsdk.APIBaseSandBox
		}
	}
	client, err := paypalsdk.NewClient(cfg.ClientID, cfg.ClientSecret, base)
	if err != nil {
		return nil, fmt.Errorf("paypal: new client: %w", err)
	}
	if cfg.HTTPClient != nil {
		client.Client = cfg.HTTPClient
	}
	return &Provider{client: client, webhookID: cfg.WebhookID, brand: cfg.BrandName, links: cfg.Links}, nil
}

func (p *Provider) Method() domain.Method          { return domain.MethodPayPal }
func (p *Provider) Label() string                  { return "PayPal" }
func (p *Provider) AllowsManualConfirmation() bool { return true }

// CreateCheckout creates a CAPTURE-intent order whose custom_id is our order id
// and returns its approval link.
func (p *Provider) CreateCheckout(ctx context.Context, order domain.Order) (payment.Checkout, error) {
	units := []paypalsdk.PurchaseUnitRequest{{
		ReferenceID: order.ID,
		CustomID:    order.ID,
		Amount: &paypalsdk.PurchaseUnitAmount{
			Currency: strings.ToUpper(order.Currency),
			Value:    order.Total.Decimal(),
		},
	}}
	appCtx := &paypalsdk.ApplicationContext{
		BrandName: p.brand,
		ReturnURL: p.links.Success(order.ID),
		CancelURL: p.links.Cancel(order.ID),
	}

	start := time.Now()
	created, err := p.client.CreateOrder(ctx, paypalsdk.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		logger.Error(ctx, logger.CompPayPal, "checkout.create", logger.OrderID(order.ID), slog.Duration("duration", time.Since(start)), logger.Err(err))
		return payment.Checkout{}, domain.Provider("paypal", err)
	}
	link := approveLink(created.Links)
	if link == "" {
		err := fmt.Errorf("order %s has no approve link", created.ID)
		logger.Error(ctx, logger.CompPayPal, "checkout.create", logger.OrderID(order.ID), logger.Err(err))
		return payment.Checkout{}, domain.Provider("paypal", err)
	}
	logger.Info(ctx, logger.CompPayPal, "checkout.create",
		logger.OrderID(order.ID),
		slog.String("provider_ref", created.ID),
		slog.Duration("duration", time.Since(start)),
	)
	return payment.Checkout{URL: link, ProviderRef: created.ID}, nil
}

func approveLink(links []paypalsdk.Link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// Capture captures an approved PayPal order. A COMPLETED capture yields a
// captured event keyed by the PayPal order id.
func (p *Provider) Capture(ctx context.Context, providerRef string) (payment.Event, error) {
	resp, err := p.client.CaptureOrder(ctx, providerRef, paypalsdk.CaptureOrderRequest{})
	if err != nil {
		return payment.Event{}, domain.Provider("paypal", err)
	}
	evt := payment.Event{
		Method:      domain.MethodPayPal,
		Kind:        payment.EventIgnored,
		Type:        "CAPTURE." + resp.Status,
		ProviderRef: resp.ID,
	}
	for _, pu := range resp.PurchaseUnits {
		if pu.ReferenceID != "" && evt.OrderID == "" {
			evt.OrderID = pu.ReferenceID
		}
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 && evt.Reference == "" {
			evt.Reference = pu.Payments.Captures[0].ID
		}
	}
	if resp.Status == "COMPLETED" {
		evt.Kind = payment.EventCaptured
	}
	logger.Info(ctx, logger.CompPayPal, "order.capture",
		slog.String("provider_ref", providerRef),
		slog.String("capture_status", resp.Status),
	)
	return evt, nil
}

type webhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  webhookResource `json:"resource"`
}

type webhookResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CustomID          string `json:"custom_id"`
	InvoiceID         string `json:"invoice_id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		CustomID    string `json:"custom_id"`
	} `json:"purchase_units"`
}

// Parse asks PayPal to verify the transmission signature and maps the event.
func (p *Provider) Parse(r *http.Request, body []byte) (payment.Event, error) {
	if p.webhookID == "" {
		return payment.Event{}, domain.Signature("paypal", domain.MissingConfig("PAYPAL_WEBHOOK_ID"))
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	verified, err := p.client.VerifyWebhookSignature(r.Context(), r, p.webhookID)
	if err != nil {
		return payment.Event{}, domain.Signature("paypal", err)
	}
	if verified.VerificationStatus != verificationSuccess {
		return payment.Event{}, domain.Signature("paypal", fmt.Errorf("verification status %q", verified.VerificationStatus))
	}

	var we webhookEvent
	if err := json.Unmarshal(body, &we); err != nil {
		return payment.Event{}, fmt.Errorf("paypal: decode event: %w", err)
	}
	return mapEvent(we), nil
}

func mapEvent(we webhookEvent) payment.Event {
	evt := payment.Event{Method: domain.MethodPayPal, Kind: payment.EventIgnored, Type: we.EventType}
	res := we.Resource
	switch we.EventType {
	case eventCaptureCompleted:
		evt.Kind = payment.EventCaptured
		evt.OrderID = firstNonEmpty(res.CustomID, res.InvoiceID)
		evt.ProviderRef = res.SupplementaryData.RelatedIDs.OrderID
		evt.Reference = res.ID
	case eventOrderApproved:
		evt.Kind = payment.EventApproved
		evt.ProviderRef = res.ID
		for _, pu := range res.PurchaseUnits {
			if id := firstNonEmpty(pu.CustomID, pu.ReferenceID); id != "" {
				evt.OrderID = id
				break
			}
		}
	}
	return evt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
