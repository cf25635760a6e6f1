package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/mailer"
)

type sentChat struct {
	chatID int64
	text   string
}

type fakeChat struct {
	mu   sync.Mutex
	sent []sentChat
	err  error
}

func (f *fakeChat) SendTo(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentChat{chatID, text})
	return nil
}

type fakeMail struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMail) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func paidOrder() domain.Order {
	return domain.Order{
		ID:             "00000000000000aa",
		ConversationID: 77,
		Currency:       "EUR",
		Total:          8000,
		Status:         domain.StatusPaid,
		Method:         domain.MethodManual,
		Lines:          []domain.OrderLine{{ProductID: "saffron", ProductName: "Saffron", Size: "10g", Price: 8000}},
		Confirmation:   &domain.Confirmation{Proof: "TX-123", ConfirmedAt: time.Now()},
	}
}

func TestOrderPaidNotifiesCustomerAndOperator(t *testing.T) {
	chat, mail := &fakeChat{}, &fakeMail{}
	n := New(chat, mail, Options{SupplierPhone: "+86 100", OperatorChatID: 99, OperatorEmail: "ops@example.com"})

	n.OrderPaid(context.Background(), paidOrder())

	require.Len(t, chat.sent, 2)
	assert.Equal(t, int64(77), chat.sent[0].chatID)
	assert.Contains(t, chat.sent[0].text, "Supplier phone: +86 100")
	assert.Contains(t, chat.sent[0].text, "00000000000000aa")
	assert.Equal(t, int64(99), chat.sent[1].chatID)
	assert.Contains(t, chat.sent[1].text, "Proof: TX-123")

	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"ops@example.com"}, mail.sent[0].To)
	assert.Equal(t, "Order 00000000000000aa paid", mail.sent[0].Subject)
}

func TestOrderPaidWithoutOperatorOnlyTellsCustomer(t *testing.T) {
	chat, mail := &fakeChat{}, &fakeMail{}
	New(chat, mail, Options{}).OrderPaid(context.Background(), paidOrder())
	require.Len(t, chat.sent, 1)
	assert.Empty(t, mail.sent)
}

func TestChannelsAreIndependent(t *testing.T) {
	chat := &fakeChat{err: errors.New("telegram down")}
	mail := &fakeMail{}
	n := New(chat, mail, Options{OperatorChatID: 99, OperatorEmail: "ops@example.com"})

	n.OrderPaid(context.Background(), paidOrder())
	require.Len(t, mail.sent, 1)

	chat.err = nil
	mail.err = errors.New("smtp down")
	o := paidOrder()
	o.ContactEmail = "buyer@example.com"
	o.Shipping = &domain.Shipping{Text: "Via Roma 1"}
	n.ReceiptReady(context.Background(), o)
	assert.Len(t, chat.sent, 2)
}

func TestReceiptReady(t *testing.T) {
	chat, mail := &fakeChat{}, &fakeMail{}
	n := New(chat, mail, Options{ShopName: "Saffron Shop", OperatorChatID: 99})

	o := paidOrder()
	o.Shipping = &domain.Shipping{Text: "Mario Rossi, Via Roma 1"}
	o.ContactEmail = "buyer@example.com"
	n.ReceiptReady(context.Background(), o)

	require.Len(t, chat.sent, 2)
	assert.Contains(t, chat.sent[0].text, "Mario Rossi, Via Roma 1")
	assert.Contains(t, chat.sent[0].text, "Total: 80.00€")
	assert.Contains(t, chat.sent[1].text, "Ready to ship")

	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"buyer@example.com"}, mail.sent[0].To)
	assert.Equal(t, "Saffron Shop: Your order 00000000000000aa", mail.sent[0].Subject)

	o.ContactEmail = ""
	n.ReceiptReady(context.Background(), o)
	assert.Len(t, mail.sent, 1)
}

func TestNilMailerDiscards(t *testing.T) {
	chat := &fakeChat{}
	n := New(chat, nil, Options{OperatorEmail: "ops@example.com"})
	n.OrderPaid(context.Background(), paidOrder())
	assert.Len(t, chat.sent, 1)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	o := paidOrder()
	r.OrderPaid(context.Background(), o)
	r.OrderPaid(context.Background(), o)
	r.ReceiptReady(context.Background(), o)
	assert.Equal(t, 2, r.PaidCount(o.ID))
	assert.Len(t, r.Receipts(), 1)
	assert.Zero(t, r.PaidCount("other"))
}
