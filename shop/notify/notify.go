// Package notify tells the customer and the operator about paid orders and
// completed receipts over chat and email.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/mailer"
	"github.com/m3rciful/shopbot/shop/orders"
)

// Chat delivers a text message to a chat id.
type Chat interface {
	SendTo(ctx context.Context, chatID int64, text string) error
}

// Options configures the notifier.
type Options struct {
	ShopName       string
	SupplierPhone  string
	OperatorChatID int64
	OperatorEmail  string
}

// Notifier implements orders.PaidObserver and orders.ReceiptObserver.
type Notifier struct {
	chat Chat
	mail mailer.Sender
	opts Options
}

// New builds a notifier. A nil mail sender disables email.
func New(chat Chat, mail mailer.Sender, opts Options) *Notifier {
	if mail == nil {
		mail = mailer.Discard{}
	}
	return &Notifier{chat: chat, mail: mail, opts: opts}
}

// OrderPaid confirms the payment to the customer and alerts the operator.
func (n *Notifier) OrderPaid(ctx context.Context, o domain.Order) {
	ctx = logger.WithOrderID(ctx, o.ID)

	n.toChat(ctx, "paid.customer", int64(o.ConversationID), PaidCustomerText(o, n.opts.SupplierPhone))
	if n.opts.OperatorChatID != 0 {
		n.toChat(ctx, "paid.operator", n.opts.OperatorChatID, PaidOperatorText(o, n.opts.SupplierPhone))
	}
	if n.opts.OperatorEmail != "" {
		n.toMail(ctx, "paid.operator", mailer.Message{
			To:      []string{n.opts.OperatorEmail},
			Subject: fmt.Sprintf("Order %s paid", o.ID),
			Body:    PaidOperatorText(o, n.opts.SupplierPhone),
		})
	}
}

// ReceiptReady sends the final receipt. Each call re-sends.
func (n *Notifier) ReceiptReady(ctx context.Context, o domain.Order) {
	ctx = logger.WithOrderID(ctx, o.ID)

	receipt := ReceiptText(o, n.opts.SupplierPhone)
	n.toChat(ctx, "receipt.customer", int64(o.ConversationID), receipt)
	if o.ContactEmail != "" {
		n.toMail(ctx, "receipt.customer", mailer.Message{
			To:      []string{o.ContactEmail},
			Subject: n.subject(fmt.Sprintf("Your order %s", o.ID)),
			Body:    receipt,
		})
	}
	if n.opts.OperatorChatID != 0 {
		n.toChat(ctx, "receipt.operator", n.opts.OperatorChatID, "📦 Ready to ship\n"+orders.Summary(o)+
			fmt.Sprintf("\nChat: %d", o.ConversationID))
	}
}

func (n *Notifier) subject(s string) string {
	if n.opts.ShopName == "" {
		return s
	}
	return n.opts.ShopName + ": " + s
}

func (n *Notifier) toChat(ctx context.Context, event string, chatID int64, text string) {
	if n.chat == nil {
		return
	}
	if err := n.chat.SendTo(ctx, chatID, text); err != nil {
		logger.Warn(ctx, logger.CompNotify, event, slog.String("channel", "chat"), logger.ChatID(chatID), logger.Err(err))
		return
	}
	logger.Debug(ctx, logger.CompNotify, event, slog.String("channel", "chat"), logger.ChatID(chatID))
}

func (n *Notifier) toMail(ctx context.Context, event string, msg mailer.Message) {
	if err := n.mail.Send(ctx, msg); err != nil {
		logger.Warn(ctx, logger.CompNotify, event, slog.String("channel", "email"), logger.Err(err))
	}
}

// PaidCustomerText confirms payment and hands out the supplier contact.
func PaidCustomerText(o domain.Order, supplierPhone string) string {
	var b strings.Builder
	b.WriteString("✅ Payment confirmed.\n")
	if supplierPhone != "" {
		fmt.Fprintf(&b, "Supplier phone: %s\nContact the supplier and provide your order ID: %s\n", supplierPhone, o.ID)
	} else {
		fmt.Fprintf(&b, "Order ID: %s\n", o.ID)
	}
	b.WriteString("\nPlease send your shipping details (name, address, phone) in one message.")
	return b.String()
}

// PaidOperatorText is the operator alert for a paid order.
func PaidOperatorText(o domain.Order, supplierPhone string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💸 Order %s paid by chat %d via %s\n", o.ID, o.ConversationID, o.Method)
	b.WriteString(orders.Lines(o))
	if c := o.Confirmation; c != nil {
		if c.ProviderRef != "" {
			fmt.Fprintf(&b, "\nReference: %s", c.ProviderRef)
		}
		if c.Proof != "" {
			fmt.Fprintf(&b, "\nProof: %s", c.Proof)
		}
	}
	if supplierPhone != "" {
		fmt.Fprintf(&b, "\nSupplier phone delivered: %s", supplierPhone)
	}
	return b.String()
}

// ReceiptText is the customer receipt.
func ReceiptText(o domain.Order, supplierPhone string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 Receipt for order %s\n", o.ID)
	b.WriteString(orders.Lines(o))
	if o.Shipping != nil {
		fmt.Fprintf(&b, "\n\nShip to:\n%s", o.Shipping.Text)
	}
	if supplierPhone != "" {
		fmt.Fprintf(&b, "\n\nSupplier phone: %s", supplierPhone)
	}
	b.WriteString("\n\nThank you for your order!")
	return b.String()
}
