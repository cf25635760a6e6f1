package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/payment"
)

type fakeAPI struct {
	mu           sync.Mutex
	verifyStatus string
	captureState string
	created      map[string]any
	captured     []string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":32400}`)
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.created = body
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"PP-ORDER-1","status":"CREATED","links":[
			{"href":"https://api.paypal.test/v2/checkout/orders/PP-ORDER-1","rel":"self","method":"GET"},
			{"href":"https://www.paypal.test/checkoutnow?token=PP-ORDER-1","rel":"approve","method":"GET"}]}`)
	})
	mux.HandleFunc("/v2/checkout/orders/PP-ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.captured = append(f.captured, r.URL.Path)
		status := f.captureState
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"PP-ORDER-1","status":%q,"purchase_units":[
			{"reference_id":"00000000000000aa","payments":{"captures":[{"id":"CAP-1"}]}}]}`, status)
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.verifyStatus
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"verification_status":%q}`, status)
	})
	return mux
}

func newProvider(t *testing.T, f *fakeAPI, webhookID string) *Provider {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	p, err := New(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		WebhookID:    webhookID,
		Links:        payment.Links{BaseURL: "https://shop.example.com"},
		HTTPClient:   srv.Client(),
		APIBase:      srv.URL,
	})
	require.NoError(t, err)
	return p
}

func webhookRequest(t *testing.T, body string) (*http.Request, []byte) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(body))
	r.Header.Set("Paypal-Auth-Algo", "SHA256withRSA")
	r.Header.Set("Paypal-Cert-Url", "https://api.paypal.test/cert")
	r.Header.Set("Paypal-Transmission-Id", "tx-1")
	r.Header.Set("Paypal-Transmission-Sig", "sig")
	r.Header.Set("Paypal-Transmission-Time", "2026-10-15T10:00:00Z")
	return r, []byte(body)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{ClientSecret: "s"})
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
	_, err = New(Config{ClientID: "c"})
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestCreateCheckout(t *testing.T) {
	f := &fakeAPI{}
	p := newProvider(t, f, "WH-1")

	co, err := p.CreateCheckout(context.Background(), domain.Order{ID: "00000000000000aa", Currency: "EUR", Total: 29600})
	require.NoError(t, err)
	assert.Equal(t, "https://www.paypal.test/checkoutnow?token=PP-ORDER-1", co.URL)
	assert.Equal(t, "PP-ORDER-1", co.ProviderRef)
	assert.True(t, p.AllowsManualConfirmation())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "CAPTURE", f.created["intent"])
	units, ok := f.created["purchase_units"].([]any)
	require.True(t, ok)
	require.Len(t, units, 1)
	unit := units[0].(map[string]any)
	assert.Equal(t, "00000000000000aa", unit["custom_id"])
	amount := unit["amount"].(map[string]any)
	assert.Equal(t, "EUR", amount["currency_code"])
	assert.Equal(t, "296.00", amount["value"])
}

func TestParseCaptureCompleted(t *testing.T) {
	p := newProvider(t, &fakeAPI{verifyStatus: "SUCCESS"}, "WH-1")
	r, body := webhookRequest(t, `{"id":"WH-EVT-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{
		"id":"CAP-1","status":"COMPLETED","custom_id":"00000000000000aa",
		"supplementary_data":{"related_ids":{"order_id":"PP-ORDER-1"}}}}`)

	evt, err := p.Parse(r, body)
	require.NoError(t, err)
	assert.Equal(t, payment.EventCaptured, evt.Kind)
	assert.Equal(t, "00000000000000aa", evt.OrderID)
	assert.Equal(t, "PP-ORDER-1", evt.ProviderRef)
	assert.Equal(t, "CAP-1", evt.Reference)
	assert.Equal(t, domain.MethodPayPal, evt.Method)
}

func TestParseOrderApproved(t *testing.T) {
	p := newProvider(t, &fakeAPI{verifyStatus: "SUCCESS"}, "WH-1")
	r, body := webhookRequest(t, `{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{
		"id":"PP-ORDER-1","status":"APPROVED","purchase_units":[{"reference_id":"00000000000000aa","custom_id":"00000000000000aa"}]}}`)

	evt, err := p.Parse(r, body)
	require.NoError(t, err)
	assert.Equal(t, payment.EventApproved, evt.Kind)
	assert.Equal(t, "PP-ORDER-1", evt.ProviderRef)
	assert.Equal(t, "00000000000000aa", evt.OrderID)
}

func TestParseIgnoresOtherEvents(t *testing.T) {
	p := newProvider(t, &fakeAPI{verifyStatus: "SUCCESS"}, "WH-1")
	r, body := webhookRequest(t, `{"event_type":"PAYMENT.CAPTURE.REFUNDED","resource":{"id":"CAP-1"}}`)
	evt, err := p.Parse(r, body)
	require.NoError(t, err)
	assert.Equal(t, payment.EventIgnored, evt.Kind)
	assert.Equal(t, "PAYMENT.CAPTURE.REFUNDED", evt.Type)
}

func TestParseRejectsFailedVerification(t *testing.T) {
	p := newProvider(t, &fakeAPI{verifyStatus: "FAILURE"}, "WH-1")
	r, body := webhookRequest(t, `{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"custom_id":"x"}}`)
	_, err := p.Parse(r, body)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestParseWithoutWebhookIDFails(t *testing.T) {
	p := newProvider(t, &fakeAPI{verifyStatus: "SUCCESS"}, "")
	r, body := webhookRequest(t, `{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	_, err := p.Parse(r, body)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestCapture(t *testing.T) {
	f := &fakeAPI{captureState: "COMPLETED"}
	p := newProvider(t, f, "WH-1")

	evt, err := p.Capture(context.Background(), "PP-ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, payment.EventCaptured, evt.Kind)
	assert.Equal(t, "PP-ORDER-1", evt.ProviderRef)
	assert.Equal(t, "00000000000000aa", evt.OrderID)
	assert.Equal(t, "CAP-1", evt.Reference)

	f.mu.Lock()
	f.captureState = "PENDING"
	f.mu.Unlock()
	evt, err = p.Capture(context.Background(), "PP-ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, payment.EventIgnored, evt.Kind)
}

func TestCaptureUnknownOrderIsProviderError(t *testing.T) {
	p := newProvider(t, &fakeAPI{}, "WH-1")
	_, err := p.Capture(context.Background(), "MISSING")
	require.ErrorIs(t, err, domain.ErrProvider)
}
