package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases are alternative spellings, including reply keyboard labels such as "🛒 Cart".
	Aliases []string
	// Position orders the command in the Telegram menu; ties fall back to the name.
	Position int
}
