package logger

import "log/slog"

// Attribute constructors for keys that appear across many components.

func OrderID(id string) slog.Attr { return slog.String("order_id", id) }

func Method(m string) slog.Attr { return slog.String("method", m) }

func Provider(p string) slog.Attr { return slog.String("provider", p) }

func TotalCents(c int64) slog.Attr { return slog.Int64("total_cents", c) }

func Stage(s string) slog.Attr { return slog.String("stage", s) }

func ChatID(id int64) slog.Attr { return slog.Int64("chat_id", id) }

// Err renders err under the "err" key; a nil error yields an empty attr that the handler drops.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
