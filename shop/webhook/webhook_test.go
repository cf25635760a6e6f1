package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v79/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/cart"
	"github.com/m3rciful/shopbot/shop/catalog"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/notify"
	"github.com/m3rciful/shopbot/shop/orders"
	"github.com/m3rciful/shopbot/shop/payment"
	"github.com/m3rciful/shopbot/shop/payment/stripe"
	"github.com/m3rciful/shopbot/shop/storage/memory"
)

const whSecret = "whsec_test"

type fakeVerifier struct {
	evt payment.Event
	err error
}

func (f fakeVerifier) Parse(*http.Request, []byte) (payment.Event, error) { return f.evt, f.err }

type fakeCapturer struct {
	evt   payment.Event
	err   error
	calls []string
}

func (f *fakeCapturer) Capture(_ context.Context, ref string) (payment.Event, error) {
	f.calls = append(f.calls, ref)
	return f.evt, f.err
}

type fixture struct {
	tracker *orders.Tracker
	rec     *notify.Recorder
	order   domain.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := memory.NewSessions()
	carts := cart.New(sessions, catalog.Default())
	tracker := orders.New(memory.NewOrders(), sessions, carts, orders.Options{})
	rec := &notify.Recorder{}
	tracker.OnPaid(rec)

	ctx := context.Background()
	require.NoError(t, carts.AddItem(ctx, 77, "saffron", "10g"))
	o, err := tracker.Create(ctx, 77)
	require.NoError(t, err)
	_, err = tracker.AttachProviderRef(ctx, o.ID, "PP-ORDER-1")
	require.NoError(t, err)
	return &fixture{tracker: tracker, rec: rec, order: o}
}

func stripeHandler(t *testing.T, f *fixture) http.Handler {
	t.Helper()
	p, err := stripe.New(stripe.Config{SecretKey: "sk_test_x", WebhookSecret: whSecret})
	require.NoError(t, err)
	return NewHandler(NewReceiver(f.tracker, nil), map[domain.Method]payment.Verifier{domain.MethodStripe: p}, Options{})
}

func stripeEvent(orderID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "api_version": "2020-08-27",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "client_reference_id": %[1]q,
    "payment_intent": "pi_123",
    "payment_status": "paid",
    "metadata": {"order_id": %[1]q}
  }}
}`, orderID))
}

func postStripe(t *testing.T, h http.Handler, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	r := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	r.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestStripeWebhookMarksPaidOnce(t *testing.T) {
	f := newFixture(t)
	h := stripeHandler(t, f)

	body := stripeEvent(f.order.ID)
	assert.Equal(t, http.StatusOK, postStripe(t, h, body, whSecret).Code)
	assert.Equal(t, http.StatusOK, postStripe(t, h, body, whSecret).Code)

	assert.Equal(t, 1, f.rec.PaidCount(f.order.ID))
	o, err := f.tracker.Get(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.True(t, o.Paid())
	assert.Equal(t, domain.MethodStripe, o.Method)
	assert.Equal(t, "pi_123", o.Confirmation.ProviderRef)
}

func TestBadSignatureIsRejected(t *testing.T) {
	f := newFixture(t)
	h := stripeHandler(t, f)

	w := postStripe(t, h, stripeEvent(f.order.ID), "whsec_forged")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.rec.Paid())
	o, err := f.tracker.Get(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.False(t, o.Paid())
}

func TestUnknownOrderIsAcknowledged(t *testing.T) {
	var buf bytes.Buffer
	flush := logger.UseWriter(&buf, slog.LevelDebug)

	f := newFixture(t)
	h := stripeHandler(t, f)
	w := postStripe(t, h, stripeEvent("ffffffffffffffff"), whSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.rec.Paid())
	require.NoError(t, flush())
	assert.Contains(t, buf.String(), "webhook.order_not_found")
}

func TestMissingOrderIDIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(NewReceiver(f.tracker, nil), map[domain.Method]payment.Verifier{
		domain.MethodPayPal: fakeVerifier{evt: payment.Event{Method: domain.MethodPayPal, Kind: payment.EventCaptured}},
	}, Options{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.rec.Paid())
}

func TestCapturedByProviderRef(t *testing.T) {
	f := newFixture(t)
	rc := NewReceiver(f.tracker, nil)
	out, err := rc.Apply(context.Background(), payment.Event{Method: domain.MethodPayPal, Kind: payment.EventCaptured, ProviderRef: "PP-ORDER-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, out)
	assert.Equal(t, 1, f.rec.PaidCount(f.order.ID))
}

func TestApprovedEventIsCaptured(t *testing.T) {
	f := newFixture(t)
	capt := &fakeCapturer{evt: payment.Event{
		Method:      domain.MethodPayPal,
		Kind:        payment.EventCaptured,
		ProviderRef: "PP-ORDER-1",
		Reference:   "CAP-1",
	}}
	rc := NewReceiver(f.tracker, map[domain.Method]payment.Capturer{domain.MethodPayPal: capt})
	approved := payment.Event{Method: domain.MethodPayPal, Kind: payment.EventApproved, ProviderRef: "PP-ORDER-1", OrderID: f.order.ID}

	out, err := rc.Apply(context.Background(), approved)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, out)
	assert.Equal(t, []string{"PP-ORDER-1"}, capt.calls)

	o, err := f.tracker.Get(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "CAP-1", o.Confirmation.ProviderRef)

	completed := payment.Event{Method: domain.MethodPayPal, Kind: payment.EventCaptured, OrderID: f.order.ID, ProviderRef: "PP-ORDER-1"}
	out, err = rc.Apply(context.Background(), completed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, 1, f.rec.PaidCount(f.order.ID))
}

func TestCaptureFailureIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	capt := &fakeCapturer{err: domain.Provider("paypal", errors.New("503"))}
	h := NewHandler(NewReceiver(f.tracker, map[domain.Method]payment.Capturer{domain.MethodPayPal: capt}),
		map[domain.Method]payment.Verifier{domain.MethodPayPal: fakeVerifier{evt: payment.Event{
			Method: domain.MethodPayPal, Kind: payment.EventApproved, ProviderRef: "PP-ORDER-1",
		}}}, Options{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, capt.calls, 1)
	assert.Empty(t, f.rec.Paid())
}

type failingOrders struct{}

func (failingOrders) MarkPaid(context.Context, string, domain.Method, domain.Confirmation) (domain.Order, error) {
	return domain.Order{}, errors.New("database unavailable")
}

func (failingOrders) FindByProviderRef(context.Context, string) (domain.Order, error) {
	return domain.Order{}, domain.NotFound("order", "x")
}

func TestStoreFailureIs500(t *testing.T) {
	h := NewHandler(NewReceiver(failingOrders{}, nil), map[domain.Method]payment.Verifier{
		domain.MethodPayPal: fakeVerifier{evt: payment.Event{Method: domain.MethodPayPal, Kind: payment.EventCaptured, OrderID: "x"}},
	}, Options{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader("{}")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t)
	h := stripeHandler(t, f)
	big := bytes.Repeat([]byte("a"), MaxBody+1)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	h := stripeHandler(t, f)

	cases := []struct {
		method, path string
		status       int
		contains     string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, "ok"},
		{http.MethodGet, "/payment/success?order_id=%3Cb%3E", http.StatusOK, "&lt;b&gt;"},
		{http.MethodGet, "/payment/cancel", http.StatusOK, "cancelled"},
		{http.MethodPost, "/webhooks/paypal", http.StatusNotFound, ""},
		{http.MethodGet, "/webhooks/stripe", http.StatusMethodNotAllowed, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, w.Code, tc.path)
		if tc.contains != "" {
			assert.Contains(t, w.Body.String(), tc.contains, tc.path)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
