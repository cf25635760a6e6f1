// Package orders tracks checkout attempts from cart snapshot to receipt.
package orders

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/cart"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/storage"
)

// PaidObserver is told once per order when it becomes paid.
type PaidObserver interface {
	OrderPaid(ctx context.Context, order domain.Order)
}

// ReceiptObserver is told whenever an order's receipt is ready to send.
type ReceiptObserver interface {
	ReceiptReady(ctx context.Context, order domain.Order)
}

// Options override the clock and id source.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

// Tracker is the order service.
type Tracker struct {
	orders   storage.OrderStore
	sessions storage.SessionStore
	cart     *cart.Store
	now      func() time.Time
	newID    func() string

	mu       sync.RWMutex
	paid     []PaidObserver
	receipts []ReceiptObserver
}

// NewID returns 16 hex characters (60 random bits) from a random UUID.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// New builds a tracker.
func New(orders storage.OrderStore, sessions storage.SessionStore, carts *cart.Store, opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewID
	}
	return &Tracker{orders: orders, sessions: sessions, cart: carts, now: opts.Now, newID: opts.NewID}
}

// OnPaid registers an observer; observers run in registration order.
func (t *Tracker) OnPaid(o PaidObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paid = append(t.paid, o)
}

// OnReceipt registers a receipt observer.
func (t *Tracker) OnReceipt(o ReceiptObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receipts = append(t.receipts, o)
}

// Create snapshots the conversation's cart into a new unpaid order and links
// it to the session. An empty cart yields domain.ErrEmptyCart and no order.
func (t *Tracker) Create(ctx context.Context, conv domain.ConversationID) (domain.Order, error) {
	sess, err := t.sessions.Get(ctx, conv)
	if err != nil {
		return domain.Order{}, err
	}
	if len(sess.Cart) == 0 {
		return domain.Order{}, &domain.Error{ErrCode: "EMPTY_CART", Message: "cart is empty", Err: domain.ErrEmptyCart}
	}
	lines, err := t.cart.Price(sess.Cart)
	if err != nil {
		return domain.Order{}, domain.ValidationWrap("cart", err)
	}

	order := domain.Order{
		ID:             t.newID(),
		ConversationID: conv,
		Lines:          make([]domain.OrderLine, 0, len(lines)),
		Total:          cart.SumLines(lines),
		Currency:       t.cart.Catalog().Currency(),
		CreatedAt:      t.now(),
		Status:         domain.StatusUnpaid,
		Method:         domain.MethodNone,
	}
	for _, l := range lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Size:        l.Size,
			Price:       l.Price,
		})
	}
	if err := t.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, err
	}
	if _, err := t.sessions.Mutate(ctx, conv, func(s *domain.Session) error {
		s.OrderIDs = append(s.OrderIDs, order.ID)
		return nil
	}); err != nil {
		return domain.Order{}, err
	}

	logger.Info(logger.WithOrderID(ctx, order.ID), logger.CompOrders, "order.create",
		logger.TotalCents(int64(order.Total)),
		slog.Int("items", len(order.Lines)),
	)
	return order, nil
}

// AttachProviderRef records the provider's checkout reference.
func (t *Tracker) AttachProviderRef(ctx context.Context, id, ref string) (domain.Order, error) {
	return t.orders.Mutate(ctx, id, func(o *domain.Order) error {
		o.ProviderRef = ref
		return nil
	})
}

// MarkPaid transitions an unpaid order to paid and notifies paid observers
// exactly once. A second call fails with domain.ErrAlreadyPaid.
func (t *Tracker) MarkPaid(ctx context.Context, id string, method domain.Method, conf domain.Confirmation) (domain.Order, error) {
	ctx = logger.WithOrderID(ctx, id)
	order, err := t.orders.Mutate(ctx, id, func(o *domain.Order) error {
		if o.Paid() {
			return fmt.Errorf("order %s: %w", id, domain.ErrAlreadyPaid)
		}
		if conf.ConfirmedAt.IsZero() {
			conf.ConfirmedAt = t.now()
		}
		o.Status = domain.StatusPaid
		o.Method = method
		o.Confirmation = &conf
		if o.ProviderRef == "" {
			o.ProviderRef = conf.ProviderRef
		}
		return nil
	})
	if err != nil {
		status := "fail"
		if errors.Is(err, domain.ErrAlreadyPaid) {
			status = "duplicate"
		}
		logger.Info(ctx, logger.CompOrders, "order.paid", slog.String("status", status), logger.Method(string(method)), logger.Err(err))
		return domain.Order{}, err
	}

	logger.Info(ctx, logger.CompOrders, "order.paid",
		slog.String("status", "ok"),
		logger.Method(string(method)),
		logger.TotalCents(int64(order.Total)),
	)
	t.mu.RLock()
	observers := append([]PaidObserver(nil), t.paid...)
	t.mu.RUnlock()
	for _, o := range observers {
		o.OrderPaid(ctx, order.Clone())
	}
	return order, nil
}

// RecordShipping stores the shipping text of a paid order, overwriting any
// previous value.
func (t *Tracker) RecordShipping(ctx context.Context, id, text string) (domain.Order, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Order{}, domain.Validation("shipping", "empty")
	}
	order, err := t.orders.Mutate(ctx, id, func(o *domain.Order) error {
		if !o.Paid() {
			return &domain.Error{ErrCode: "NOT_PAID", Message: "order " + id + " is not paid", Err: domain.ErrNotPaid}
		}
		o.Shipping = &domain.Shipping{Text: text, RecordedAt: t.now()}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	logger.Info(logger.WithOrderID(ctx, id), logger.CompOrders, "order.shipping", slog.Int("text_len", len([]rune(text))))
	return order, nil
}

// RecordContactEmail validates and stores the customer email. When shipping
// is already recorded the receipt observers run.
func (t *Tracker) RecordContactEmail(ctx context.Context, id, email string) (domain.Order, error) {
	addr, err := ParseEmail(email)
	if err != nil {
		return domain.Order{}, err
	}
	return t.complete(ctx, id, func(o *domain.Order) {
		o.ContactEmail = addr
		o.EmailSkipped = false
	})
}

// SkipContactEmail completes a shipped order without an email address.
func (t *Tracker) SkipContactEmail(ctx context.Context, id string) (domain.Order, error) {
	return t.complete(ctx, id, func(o *domain.Order) {
		o.ContactEmail = ""
		o.EmailSkipped = true
	})
}

func (t *Tracker) complete(ctx context.Context, id string, apply func(*domain.Order)) (domain.Order, error) {
	ctx = logger.WithOrderID(ctx, id)
	order, err := t.orders.Mutate(ctx, id, func(o *domain.Order) error {
		apply(o)
		if o.Shipping != nil {
			now := t.now()
			o.ReceiptSentAt = &now
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if order.ReceiptSentAt == nil {
		return order, nil
	}

	logger.Info(ctx, logger.CompOrders, "order.receipt", slog.Bool("email", order.ContactEmail != ""))
	t.mu.RLock()
	observers := append([]ReceiptObserver(nil), t.receipts...)
	t.mu.RUnlock()
	for _, o := range observers {
		o.ReceiptReady(ctx, order.Clone())
	}
	return order, nil
}

// Get returns an order or domain.ErrNotFound.
func (t *Tracker) Get(ctx context.Context, id string) (domain.Order, error) {
	return t.orders.Get(ctx, id)
}

// ListByConversation returns a conversation's orders oldest first.
func (t *Tracker) ListByConversation(ctx context.Context, conv domain.ConversationID) ([]domain.Order, error) {
	return t.orders.ListByConversation(ctx, conv)
}

// FindByProviderRef resolves an order from a checkout session or PayPal order id.
func (t *Tracker) FindByProviderRef(ctx context.Context, ref string) (domain.Order, error) {
	return t.orders.FindByProviderRef(ctx, ref)
}

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// FindEmail returns the first well-formed email address embedded in text.
func FindEmail(text string) (string, bool) {
	for _, candidate := range emailRe.FindAllString(text, -1) {
		if addr, err := ParseEmail(candidate); err == nil {
			return addr, true
		}
	}
	return "", false
}

// ParseEmail validates a single address and returns its bare form.
func ParseEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.Validation("email", "empty")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", domain.Validation("email", err.Error())
	}
	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", domain.Validation("email", "missing domain")
	}
	return addr.Address, nil
}
