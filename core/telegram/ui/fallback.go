// Package ui holds the contracts between the generic router and a bot's
// conversational layer.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider supplies the handlers for updates that no command, alias
// or callback key claims. UnknownDocument also receives photos.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}
