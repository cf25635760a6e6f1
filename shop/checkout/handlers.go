package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/orders"
)

func (m *Machine) start(ctx context.Context, s domain.Session, _ Event) (Reply, error) {
	if err := m.mutate(ctx, s.ConversationID, (*domain.Session).ResetTransient); err != nil {
		return Reply{}, err
	}
	name := m.opts.ShopName
	if name == "" {
		name = "our shop"
	}
	return Reply{Text: fmt.Sprintf("Welcome to %s! Choose an option:", name), Menu: true}, nil
}

func (m *Machine) cancel(ctx context.Context, s domain.Session, _ Event) (Reply, error) {
	if err := m.mutate(ctx, s.ConversationID, (*domain.Session).ResetTransient); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Cancelled. Your cart is kept; use /cart to see it.", Menu: true}, nil
}

func (m *Machine) info(context.Context, domain.Session, Event) (Reply, error) {
	text := m.opts.InfoText
	if text == "" {
		text = "We ship worldwide. Use /shop to browse products."
	}
	return Reply{Text: text}, nil
}

func (m *Machine) contacts(context.Context, domain.Session, Event) (Reply, error) {
	text := m.opts.ContactsText
	if text == "" {
		text = "Write to us right here in this chat."
	}
	return Reply{Text: text}, nil
}

func (m *Machine) shop(ctx context.Context, s domain.Session, _ Event) (Reply, error) {
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageBrowsing
	}); err != nil {
		return Reply{}, err
	}
	products := m.catalog.Products()
	if len(products) == 1 {
		return m.sizesReply(products[0].ID)
	}
	rows := make([][]Button, 0, len(products))
	for _, p := range products {
		rows = append(rows, []Button{btn(p.Name, KindSelectProduct, Action{Product: p.ID})})
	}
	return Reply{Text: "Choose a product:", Inline: rows}, nil
}

func (m *Machine) selectProduct(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	if _, err := m.catalog.Product(ev.Action.Product); err != nil {
		return Reply{Text: "This product is no longer available. Use /shop to see the catalog."}, nil
	}
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageBrowsing
		s.BrowsingProduct = ev.Action.Product
	}); err != nil {
		return Reply{}, err
	}
	return m.sizesReply(ev.Action.Product)
}

func (m *Machine) sizesReply(productID string) (Reply, error) {
	p, err := m.catalog.Product(productID)
	if err != nil {
		return Reply{}, err
	}
	currency := m.catalog.Currency()
	rows := make([][]Button, 0, len(p.Sizes)+1)
	for _, size := range p.Sizes {
		rows = append(rows, []Button{btn(sizeLabel(size, currency), KindAddItem, Action{Product: p.ID, Size: size.Label})})
	}
	rows = append(rows, []Button{btn(MenuCart, KindCart, Action{})})
	return Reply{Text: fmt.Sprintf("%s: choose a size.", p.Name), Inline: rows}, nil
}

func (m *Machine) addItem(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	return m.add(ctx, s.ConversationID, ev.Action.Product, ev.Action.Size)
}

func (m *Machine) add(ctx context.Context, conv domain.ConversationID, product, size string) (Reply, error) {
	if err := m.carts.AddItem(ctx, conv, product, size); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return Reply{Text: "Unknown product or size. Use /shop to see the catalog."}, nil
		}
		return Reply{}, err
	}
	if err := m.mutate(ctx, conv, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageBrowsing
		s.BrowsingProduct = product
	}); err != nil {
		return Reply{}, err
	}
	name := product
	if p, err := m.catalog.Product(product); err == nil {
		name = p.Name
	}
	return Reply{
		Text:   fmt.Sprintf("Added %s %s to cart. Use /cart to pay.", name, size),
		Inline: [][]Button{{btn(MenuCart, KindCart, Action{})}},
	}, nil
}

func (m *Machine) browsingText(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	label := strings.TrimSpace(ev.Text)
	if s.BrowsingProduct != "" {
		if p, err := m.catalog.Product(s.BrowsingProduct); err == nil {
			if _, ok := p.Size(label); ok {
				return m.add(ctx, s.ConversationID, p.ID, label)
			}
		}
	}
	return unknownReply(), nil
}

func (m *Machine) unknownText(context.Context, domain.Session, Event) (Reply, error) {
	return unknownReply(), nil
}

func (m *Machine) cart(ctx context.Context, s domain.Session, _ Event) (Reply, error) {
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageCartReview
	}); err != nil {
		return Reply{}, err
	}
	lines, err := m.carts.Lines(ctx, s.ConversationID)
	if err != nil {
		return Reply{}, err
	}
	if len(lines) == 0 {
		return Reply{Text: textEmptyCart}, nil
	}
	return Reply{
		Text: cartText(lines, m.catalog.Currency()),
		Inline: [][]Button{
			{btn("💳 Checkout", KindCheckout, Action{})},
			{btn("🗑 Clear cart", KindClearCart, Action{})},
		},
	}, nil
}

func (m *Machine) clearCart(ctx context.Context, s domain.Session, _ Event) (Reply, error) {
	if err := m.carts.Clear(ctx, s.ConversationID); err != nil {
		return Reply{}, err
	}
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageCartReview
	}); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Cart cleared. Use /shop to add products."}, nil
}

func (m *Machine) checkout(ctx context.Context, s domain.Session, _ Event) (Reply, error) {
	items, err := m.carts.Items(ctx, s.ConversationID)
	if err != nil {
		return Reply{}, err
	}
	if len(items) == 0 {
		if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
			s.ResetTransient()
			s.Stage = domain.StageCartReview
		}); err != nil {
			return Reply{}, err
		}
		return Reply{Text: textEmptyCart}, nil
	}
	providers := m.providers.List()
	if len(providers) == 0 {
		return Reply{Text: "Payments are temporarily unavailable. Please try again later."}, nil
	}
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageAwaitingPaymentChoice
	}); err != nil {
		return Reply{}, err
	}
	total, err := m.carts.Total(ctx, s.ConversationID)
	if err != nil {
		return Reply{}, err
	}
	rows := make([][]Button, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, []Button{btn(p.Label(), KindChooseMethod, Action{Method: p.Method()})})
	}
	return Reply{
		Text:   totalLine(total, m.catalog.Currency()) + "\nChoose a payment method:",
		Inline: rows,
	}, nil
}

func (m *Machine) chooseMethod(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	provider, ok := m.providers.Get(ev.Action.Method)
	if !ok {
		return Reply{Text: "This payment method is not available. Please choose another one."}, nil
	}
	order, err := m.tracker.Create(ctx, s.ConversationID)
	if errors.Is(err, domain.ErrEmptyCart) {
		if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
			s.ResetTransient()
			s.Stage = domain.StageCartReview
		}); err != nil {
			return Reply{}, err
		}
		return Reply{Text: textEmptyCart}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	ctx = logger.WithOrderID(ctx, order.ID)

	callCtx, cancel := context.WithTimeout(ctx, m.opts.ProviderTimeout)
	co, err := provider.CreateCheckout(callCtx, order)
	cancel()
	if err != nil {
		logger.Warn(ctx, logger.CompCheckout, "checkout.provider",
			logger.Provider(string(provider.Method())),
			logger.Err(err),
		)
		return Reply{Text: textProviderError}, nil
	}
	if co.ProviderRef != "" {
		if _, err := m.tracker.AttachProviderRef(ctx, order.ID, co.ProviderRef); err != nil {
			return Reply{}, err
		}
	}
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageAwaitingPaymentConfirmation
		s.ActiveOrderID = order.ID
		s.PendingOrderID = order.ID
	}); err != nil {
		return Reply{}, err
	}
	logger.Info(ctx, logger.CompCheckout, "checkout.started",
		logger.Method(string(provider.Method())),
		logger.TotalCents(int64(order.Total)),
	)

	var b strings.Builder
	b.WriteString(orders.Summary(order))
	if co.Instructions != "" {
		b.WriteString("\n\n" + co.Instructions)
	}
	var rows [][]Button
	if co.URL != "" {
		b.WriteString("\n\nPay securely using the button below.")
		rows = append(rows, []Button{{Label: "💳 Pay with " + provider.Label(), URL: co.URL}})
	}
	if provider.AllowsManualConfirmation() {
		rows = append(rows, []Button{btn("✅ I've paid", KindAssertPaid, Action{OrderID: order.ID})})
	}
	return Reply{Text: b.String(), Inline: rows}, nil
}

func (m *Machine) assertPaid(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	if ev.Action.OrderID != "" && ev.Action.OrderID != s.ActiveOrderID {
		return staleReply(), nil
	}
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ProofRequested = true
	}); err != nil {
		return Reply{}, err
	}
	return Reply{Text: textAskProof}, nil
}

func (m *Machine) confirmationText(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	proof := strings.TrimSpace(ev.Text)
	if !s.ProofRequested || proof == "" {
		return Reply{Text: textProofReminder}, nil
	}
	_, err := m.tracker.MarkPaid(ctx, s.ActiveOrderID, domain.MethodManual, domain.Confirmation{Proof: proof})
	switch {
	case errors.Is(err, domain.ErrAlreadyPaid):
		return Reply{Text: "This order is already paid."}, nil
	case errors.Is(err, domain.ErrNotFound):
		if err := m.mutate(ctx, s.ConversationID, (*domain.Session).ResetTransient); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "This order no longer exists. Use /cart to start again.", Menu: true}, nil
	case err != nil:
		return Reply{}, err
	}
	return Reply{Text: "Thank you, your payment proof was received."}, nil
}

func (m *Machine) shippingText(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	order, err := m.tracker.RecordShipping(ctx, s.ActiveOrderID, ev.Text)
	switch {
	case errors.Is(err, domain.ErrValidation):
		return Reply{Text: "Please send your shipping details (name, address, phone) as text."}, nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotPaid):
		if err := m.mutate(ctx, s.ConversationID, (*domain.Session).ResetTransient); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "There is no paid order waiting for shipping details. Use /orders to see your orders.", Menu: true}, nil
	case err != nil:
		return Reply{}, err
	}

	if email, ok := orders.FindEmail(ev.Text); ok {
		return m.finish(ctx, s.ConversationID, func() (domain.Order, error) {
			return m.tracker.RecordContactEmail(ctx, order.ID, email)
		})
	}
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.Stage = domain.StageAwaitingContactEmail
	}); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:   textAskEmail,
		Inline: [][]Button{{btn("Skip", KindSkipEmail, Action{OrderID: order.ID})}},
	}, nil
}

func (m *Machine) emailText(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	email, err := orders.ParseEmail(ev.Text)
	if err != nil {
		return Reply{
			Text:   textBadEmail,
			Inline: [][]Button{{btn("Skip", KindSkipEmail, Action{OrderID: s.ActiveOrderID})}},
		}, nil
	}
	return m.finish(ctx, s.ConversationID, func() (domain.Order, error) {
		return m.tracker.RecordContactEmail(ctx, s.ActiveOrderID, email)
	})
}

func (m *Machine) skipEmail(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	if ev.Action.OrderID != "" && ev.Action.OrderID != s.ActiveOrderID {
		return staleReply(), nil
	}
	return m.finish(ctx, s.ConversationID, func() (domain.Order, error) {
		return m.tracker.SkipContactEmail(ctx, s.ActiveOrderID)
	})
}

// finish completes the active order and returns the conversation to idle.
func (m *Machine) finish(ctx context.Context, conv domain.ConversationID, complete func() (domain.Order, error)) (Reply, error) {
	order, err := complete()
	if err != nil {
		return Reply{}, err
	}
	if err := m.mutate(ctx, conv, (*domain.Session).ResetTransient); err != nil {
		return Reply{}, err
	}
	text := "Thank you! Your order " + order.ID + " is complete. The receipt was sent in this chat."
	if order.ContactEmail != "" {
		text += " A copy went to " + order.ContactEmail + "."
	}
	return Reply{Text: text, Menu: true}, nil
}

func (m *Machine) listOrders(ctx context.Context, s domain.Session, _ Event) (Reply, error) {
	list, err := m.tracker.ListByConversation(ctx, s.ConversationID)
	if err != nil {
		return Reply{}, err
	}
	if len(list) == 0 {
		return Reply{Text: "You have no orders yet. Use /shop to browse products."}, nil
	}
	const maxListed = 10
	if len(list) > maxListed {
		list = list[len(list)-maxListed:]
	}
	var (
		b    strings.Builder
		rows [][]Button
	)
	b.WriteString("📦 Your orders:")
	for _, o := range list {
		b.WriteString("\n\n" + orders.Summary(o))
		if o.Paid() && o.ReceiptSentAt == nil {
			rows = append(rows, []Button{btn("📮 Send shipping details for "+o.ID, KindProvideShipping, Action{OrderID: o.ID})})
		}
	}
	return Reply{Text: b.String(), Inline: rows}, nil
}

func (m *Machine) provideShipping(ctx context.Context, s domain.Session, ev Event) (Reply, error) {
	order, err := m.tracker.Get(ctx, ev.Action.OrderID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && order.ConversationID != s.ConversationID) {
		return staleReply(), nil
	}
	if err != nil {
		return Reply{}, err
	}
	if !order.Paid() {
		return Reply{Text: "Order " + order.ID + " is not paid yet."}, nil
	}
	if err := m.mutate(ctx, s.ConversationID, func(s *domain.Session) {
		s.ResetTransient()
		s.Stage = domain.StageAwaitingShipping
		s.ActiveOrderID = order.ID
	}); err != nil {
		return Reply{}, err
	}
	logger.Info(logger.WithOrderID(ctx, order.ID), logger.CompCheckout, "shipping.resume", slog.Bool("had_shipping", order.Shipping != nil))
	return Reply{Text: "Please send your shipping details (name, address, phone) for order " + order.ID + " in one message."}, nil
}
