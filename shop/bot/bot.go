// Package bot is the Telegram transport of the storefront: it turns commands,
// menu labels, buttons and free text into checkout events and renders the
// replies as messages and keyboards.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	"github.com/m3rciful/shopbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/core/telegram/ui"
	"github.com/m3rciful/shopbot/shop/checkout"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/orders"

	tele "gopkg.in/telebot.v4"
)

const (
	textStaleButton = "This button is no longer active."
	textTextOnly    = "I can only read text. Please send it as a message."
	textNoOrder     = "Order not found."
	textOrderUsage  = "Usage: /order <id>"
)

// Machine handles one conversation event.
type Machine interface {
	Handle(ctx context.Context, conv domain.ConversationID, ev checkout.Event) (checkout.Reply, error)
}

// OrderReader looks orders up for the operator command.
type OrderReader interface {
	Get(ctx context.Context, id string) (domain.Order, error)
}

// Bot routes updates into the checkout machine. It also implements
// notify.Chat once Attach has been called.
type Bot struct {
	machine Machine
	orders  OrderReader
	api     atomic.Pointer[tele.Bot]
}

var _ ui.FallbackProvider = (*Bot)(nil)

// New builds the transport.
func New(machine Machine, orders OrderReader) *Bot {
	return &Bot{machine: machine, orders: orders}
}

type command struct {
	name        string
	description string
	alias       string
	kind        checkout.Kind
}

var menu = []command{
	{"/start", "Start", "", checkout.KindStart},
	{"/shop", "Browse products", checkout.MenuShop, checkout.KindShop},
	{"/cart", "Your cart", checkout.MenuCart, checkout.KindCart},
	{"/orders", "Your orders", checkout.MenuOrders, checkout.KindOrders},
	{"/info", "About the shop", checkout.MenuInfo, checkout.KindInfo},
	{"/contacts", "Contacts", checkout.MenuContacts, checkout.KindContacts},
	{"/cancel", "Cancel the current step", checkout.MenuCancel, checkout.KindCancel},
}

// Register adds the storefront commands, the button callback and the text
// fallback to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	for i, cmd := range menu {
		var aliases []string
		if cmd.alias != "" {
			aliases = []string{cmd.alias}
		}
		reg.RegisterCommand(cmd.name, commands.Command{
			Handler:     b.event(cmd.kind),
			Description: cmd.description,
			Aliases:     aliases,
			Position:    i,
		})
	}
	reg.RegisterCommand("/order", commands.Command{
		Handler:     b.orderDetails,
		Description: "Order details",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.SetTextFallback(b.text)
	reg.SetCallbackNotFound(b.UnknownCallback())
	return reg.RegisterCallback(CallbackKey, b.callback)
}

// Attach stores the running bot for out-of-band sends.
func (b *Bot) Attach(api *tele.Bot) {
	b.api.Store(api)
}

// SendTo delivers a plain message outside of an update.
func (b *Bot) SendTo(ctx context.Context, chatID int64, text string) error {
	var api tele.API
	if p := b.api.Load(); p != nil {
		api = p
	}
	return tghelpers.SendTo(ctx, api, chatID, text, nil)
}

// UnknownText sends free text to the machine.
func (b *Bot) UnknownText() tele.HandlerFunc { return b.text }

// UnknownDocument forwards a caption as text and otherwise asks for text.
func (b *Bot) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		if msg := c.Message(); msg != nil && strings.TrimSpace(msg.Caption) != "" {
			return b.dispatch(c, checkout.Event{Kind: checkout.KindText, Text: msg.Caption})
		}
		return tghelpers.SendText(c, textTextOnly)
	}
}

// UnknownCallback answers buttons that do not belong to the storefront.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: textStaleButton})
	}
}

func (b *Bot) event(kind checkout.Kind) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.dispatch(c, checkout.Event{Kind: kind})
	}
}

func (b *Bot) text(c tele.Context) error {
	return b.dispatch(c, checkout.Event{Kind: checkout.KindText, Text: c.Text()})
}

func (b *Bot) callback(c tele.Context) error {
	ev, err := DecodeEvent(callbacks.Payload(c))
	if err != nil {
		logger.Warn(tghelpers.BuildContext(c), logger.CompTelegram, "callback.decode", logger.Err(err))
		return tghelpers.SendText(c, textStaleButton)
	}
	return b.dispatch(c, ev)
}

func (b *Bot) dispatch(c tele.Context, ev checkout.Event) error {
	conv, ok := conversation(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	reply, handleErr := b.machine.Handle(ctx, conv, ev)
	if reply.Text == "" {
		return handleErr
	}
	markup, err := Markup(reply)
	if err != nil {
		logger.Error(ctx, logger.CompTelegram, "reply.markup", slog.String("event_kind", string(ev.Kind)), logger.Err(err))
		markup = nil
	}
	if err := tghelpers.SendWithMarkup(c, reply.Text, markup); err != nil {
		return errors.Join(handleErr, err)
	}
	return handleErr
}

func (b *Bot) orderDetails(c tele.Context) error {
	args := strings.Fields(c.Text())
	if len(args) < 2 {
		return tghelpers.SendText(c, textOrderUsage)
	}
	ctx := tghelpers.BuildContext(c)
	o, err := b.orders.Get(ctx, args[1])
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return tghelpers.SendText(c, textNoOrder)
	case err != nil:
		return err
	}
	return tghelpers.SendText(c, fmt.Sprintf("%s\nChat: %d", orders.Summary(o), o.ConversationID))
}

// Markup converts the reply buttons into a keyboard. Inline buttons take
// precedence over the main menu.
func Markup(r checkout.Reply) (*tele.ReplyMarkup, error) {
	if len(r.Inline) > 0 {
		rows := make([][]keyboard.InlineBtn, 0, len(r.Inline))
		for _, row := range r.Inline {
			out := make([]keyboard.InlineBtn, 0, len(row))
			for _, btn := range row {
				if btn.URL != "" {
					out = append(out, keyboard.InlineBtn{Text: btn.Label, URL: btn.URL})
					continue
				}
				data, err := EncodeEvent(btn.Event)
				if err != nil {
					return nil, fmt.Errorf("button %q: %w", btn.Label, err)
				}
				out = append(out, keyboard.InlineBtn{Text: btn.Label, Unique: CallbackKey, Data: data})
			}
			rows = append(rows, out)
		}
		return keyboard.InlineButtonsRows(rows...), nil
	}
	if r.Menu {
		return keyboard.ReplyButtons(checkout.MenuRows()...), nil
	}
	return nil, nil
}

func conversation(c tele.Context) (domain.ConversationID, bool) {
	if chat := c.Chat(); chat != nil {
		return domain.ConversationID(chat.ID), true
	}
	if user := c.Sender(); user != nil {
		return domain.ConversationID(user.ID), true
	}
	return 0, false
}
