// Package checkout is the per-conversation state machine that drives a chat
// from browsing through payment to shipping and receipt.
package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/shop/cart"
	"github.com/m3rciful/shopbot/shop/catalog"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/orders"
	"github.com/m3rciful/shopbot/shop/payment"
	"github.com/m3rciful/shopbot/shop/storage"
)

// Options holds the static texts and the provider call timeout.
type Options struct {
	ShopName        string
	InfoText        string
	ContactsText    string
	ProviderTimeout time.Duration
	// Locks lets the machine share its conversation locks; nil creates a table.
	Locks *state.Locks
}

type handler func(ctx context.Context, s domain.Session, ev Event) (Reply, error)

// Machine dispatches events through the (stage, kind) table. Handle and the
// paid observer for one conversation never run concurrently.
type Machine struct {
	sessions  storage.SessionStore
	carts     *cart.Store
	catalog   *catalog.Catalog
	tracker   *orders.Tracker
	providers *payment.Set
	locks     *state.Locks
	opts      Options

	global map[Kind]handler
	table  map[Transition]handler
}

// New builds the machine.
func New(sessions storage.SessionStore, carts *cart.Store, tracker *orders.Tracker, providers *payment.Set, opts Options) *Machine {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 15 * time.Second
	}
	if opts.Locks == nil {
		opts.Locks = state.NewLocks()
	}
	if providers == nil {
		providers = payment.NewSet()
	}
	m := &Machine{
		sessions:  sessions,
		carts:     carts,
		catalog:   carts.Catalog(),
		tracker:   tracker,
		providers: providers,
		locks:     opts.Locks,
		opts:      opts,
	}
	m.buildTable()
	return m
}

// Handle applies ev to the conversation and returns what to show the user.
// Unexpected failures come back as a generic reply together with the error.
func (m *Machine) Handle(ctx context.Context, conv domain.ConversationID, ev Event) (Reply, error) {
	ctx, unlock := m.locks.Lock(ctx, int64(conv))
	defer unlock()
	ctx = logger.WithChatID(ctx, int64(conv))

	if !ev.Kind.valid() {
		return unknownReply(), nil
	}
	sess, err := m.sessions.Get(ctx, conv)
	if err != nil {
		return failureReply(), err
	}
	h := m.handlerFor(sess.Stage, ev.Kind)
	if h == nil {
		logger.Debug(ctx, logger.CompCheckout, "event.stale", logger.Stage(string(sess.Stage)), slog.String("event_kind", string(ev.Kind)))
		if ev.Kind == KindText {
			return unknownReply(), nil
		}
		return staleReply(), nil
	}

	reply, err := h(ctx, sess, ev)
	if err != nil {
		logger.Error(ctx, logger.CompCheckout, "event.fail",
			logger.Stage(string(sess.Stage)),
			slog.String("event_kind", string(ev.Kind)),
			logger.Err(err),
		)
		return failureReply(), err
	}
	logger.Debug(ctx, logger.CompCheckout, "event.handled", logger.Stage(string(sess.Stage)), slog.String("event_kind", string(ev.Kind)))
	return reply, nil
}

// Session returns the current state of a conversation.
func (m *Machine) Session(ctx context.Context, conv domain.ConversationID) (domain.Session, error) {
	return m.sessions.Get(ctx, conv)
}

// OrderPaid moves the conversation to shipping collection when the paid order
// is its active or pending checkout, even after the customer navigated the
// menu meanwhile. The paid items leave the cart so they cannot be checked out
// again. A conversation already collecting shipping for another order keeps
// its stage; the paid one stays reachable through /orders.
func (m *Machine) OrderPaid(ctx context.Context, o domain.Order) {
	conv := o.ConversationID
	ctx, unlock := m.locks.LockUnlessHeld(ctx, int64(conv))
	defer unlock()

	matched, advanced := false, false
	_, err := m.sessions.Mutate(ctx, conv, func(s *domain.Session) error {
		if s.ActiveOrderID != o.ID && s.PendingOrderID != o.ID {
			return nil
		}
		matched = true
		s.RemoveOrdered(o.Lines)
		s.PendingOrderID = ""
		if collectingShipping(*s) && s.ActiveOrderID != o.ID {
			return nil
		}
		s.ResetTransient()
		s.Stage = domain.StageAwaitingShipping
		s.ActiveOrderID = o.ID
		advanced = true
		return nil
	})
	if err != nil {
		logger.Error(ctx, logger.CompCheckout, "order.paid.advance", logger.ChatID(int64(conv)), logger.Err(err))
		return
	}
	logger.Info(ctx, logger.CompCheckout, "order.paid.advance",
		logger.ChatID(int64(conv)),
		slog.Bool("matched", matched),
		slog.Bool("active", advanced),
	)
}

func collectingShipping(s domain.Session) bool {
	return s.ActiveOrderID != "" &&
		(s.Stage == domain.StageAwaitingShipping || s.Stage == domain.StageAwaitingContactEmail)
}

func (m *Machine) mutate(ctx context.Context, conv domain.ConversationID, fn func(*domain.Session)) error {
	_, err := m.sessions.Mutate(ctx, conv, func(s *domain.Session) error {
		fn(s)
		return nil
	})
	return err
}
