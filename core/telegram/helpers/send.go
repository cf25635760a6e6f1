package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// enqueue hands run to the dispatcher and falls back to a synchronous call when
// there is no dispatcher or its queue refuses the job.
func enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}
	err := disp.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompTelegram, "sender.queue.fallback",
			slog.String("action", action),
			logger.Err(err),
		)
		return run()
	}
	return err
}

// SendText sends raw text (no parse mode) to the current chat.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	return enqueue(BuildContext(c), "send.text", "sendMessage", func() error {
		if len(opts) > 0 && opts[0] != nil {
			return c.Send(text, opts[0])
		}
		return c.Send(text)
	})
}

// SendWithMarkup sends raw text with an optional keyboard to the current chat.
func SendWithMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if markup != nil {
		opts.ReplyMarkup = markup
	}
	return SendText(c, text, opts)
}

// SendTo delivers text to an arbitrary chat outside of an update, for example from a
// payment webhook. The request context is detached so that the send outlives it.
func SendTo(ctx context.Context, api tele.API, chatID int64, text string, markup *tele.ReplyMarkup) error {
	if api == nil {
		return errors.New("telegram: bot not started")
	}
	ctx = logger.WithChatID(context.WithoutCancel(ctx), chatID)
	opts := &tele.SendOptions{DisableWebPagePreview: true, ReplyMarkup: markup}
	return enqueue(ctx, "send.out_of_band", "sendMessage", func() error {
		_, err := api.Send(tele.ChatID(chatID), text, opts)
		return err
	})
}
