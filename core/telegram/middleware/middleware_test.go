package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	return b
}

func message(b *tele.Bot, updateID int, userID int64, text string) tele.Context {
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	b := offlineBot(t)
	clock := time.Unix(1_700_000_000, 0)
	var limited, handled int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return clock },
	})
	h := mw(func(tele.Context) error { handled++; return nil })

	_ = h(message(b, 1, 10, "a"))
	_ = h(message(b, 2, 10, "b"))
	_ = h(message(b, 3, 11, "c"))
	clock = clock.Add(2 * time.Second)
	_ = h(message(b, 4, 10, "d"))

	cb := b.NewContext(tele.Update{ID: 5, Callback: &tele.Callback{Sender: &tele.User{ID: 10}}})
	_ = h(cb)

	if handled != 4 || limited != 1 {
		t.Fatalf("handled=%d limited=%d, want 4 and 1", handled, limited)
	}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	b := offlineBot(t)
	var rejected, handled int
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  99,
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	h := mw(func(tele.Context) error { handled++; return nil })

	_ = h(message(b, 1, 99, "/order x"))
	_ = h(message(b, 2, 5, "/order x"))
	if handled != 1 || rejected != 1 {
		t.Fatalf("handled=%d rejected=%d", handled, rejected)
	}

	closed := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error { handled++; return nil })
	_ = closed(message(b, 3, 99, "/order x"))
	if handled != 1 {
		t.Fatal("unset admin must reject everyone")
	}
}

func TestRecoverMiddlewareTurnsPanicIntoError(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(message(b, 1, 1, "x")); err == nil {
		t.Fatal("expected error from recovered panic")
	}
	ok := RecoverMiddleware(func(tele.Context) error { return errors.New("plain") })
	if err := ok(message(b, 2, 1, "x")); err == nil || err.Error() != "plain" {
		t.Fatalf("err = %v", err)
	}
}

func TestLoggerMiddlewareStoresRID(t *testing.T) {
	b := offlineBot(t)
	c := message(b, 7, 3, "hello")
	var rid string
	_ = LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})(c)
	if rid != "7:3:3" {
		t.Fatalf("rid = %q", rid)
	}
}
