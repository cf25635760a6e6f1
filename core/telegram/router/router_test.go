package router

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

type noNetwork struct{}

func (noNetwork) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("network disabled in tests")
}

func offlineContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true, Client: &http.Client{Transport: noNetwork{}}})
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	return b.NewContext(upd)
}

func textUpdate(text string) tele.Update {
	return tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: 5},
		Chat:   &tele.Chat{ID: 5},
		Text:   text,
	}}
}

func TestTextRoutesPreferAliasesOverFallback(t *testing.T) {
	var got []string
	reg := tg.NewRegistry()
	reg.RegisterCommand("/cart", commands.Command{
		Description: "Cart",
		Aliases:     []string{"🛒 Cart"},
		Handler:     func(tele.Context) error { got = append(got, "cart"); return nil },
	})
	reg.RegisterCommand("/order", commands.Command{
		Description: "Order",
		AdminOnly:   true,
		Handler:     func(tele.Context) error { got = append(got, "order"); return nil },
	})
	reg.SetTextFallback(func(c tele.Context) error { got = append(got, "fallback:"+c.Text()); return nil })

	routes := TextRoutes(reg, TextOptions{})
	if len(routes) != 3 || routes[0].Endpoint != tele.OnText {
		t.Fatalf("routes = %+v", routes)
	}
	text := routes[0].Handler
	for _, msg := range []string{"🛒 Cart", "via roma 1", "/order 1"} {
		if err := text(offlineContext(t, textUpdate(msg))); err != nil {
			t.Fatalf("handle %q: %v", msg, err)
		}
	}
	want := []string{"cart", "fallback:via roma 1", "fallback:/order 1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("dispatch = %v, want %v", got, want)
	}
}

func TestTextRoutesUnknownText(t *testing.T) {
	var unknown int
	routes := TextRoutes(nil, TextOptions{UnknownText: func(tele.Context) error { unknown++; return nil }})
	_ = routes[0].Handler(offlineContext(t, textUpdate("hello")))
	if unknown != 1 {
		t.Fatalf("unknown = %d", unknown)
	}
}

func TestCallbackRouteDispatchesByKey(t *testing.T) {
	var payloads []string
	reg := tg.NewRegistry()
	_ = reg.RegisterCallback("shop", func(c tele.Context) error {
		payloads = append(payloads, c.Callback().Data)
		return nil
	})
	var missing int
	reg.SetCallbackNotFound(func(tele.Context) error { missing++; return nil })

	route := CallbackRoute(reg, CallbackOptions{})
	cb := func(data string) tele.Update {
		return tele.Update{ID: 2, Callback: &tele.Callback{ID: "cb", Sender: &tele.User{ID: 5}, Data: data}}
	}
	_ = route.Handler(offlineContext(t, cb("\fshop|{\"v\":1}")))
	_ = route.Handler(offlineContext(t, cb("\fother|x")))

	if len(payloads) != 1 || missing != 1 {
		t.Fatalf("payloads=%v missing=%d", payloads, missing)
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "x" }
func (codedErr) Code() string  { return "empty cart" }

type plainErr struct{}

func (*plainErr) Error() string { return "x" }

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(fmt.Errorf("wrap: %w", codedErr{})); got != "EMPTY_CART" {
		t.Fatalf("code = %q", got)
	}
	if got := deriveErrorCode(&plainErr{}); got != "PLAINERR" {
		t.Fatalf("code = %q", got)
	}
	if got := deriveErrorCode(errors.New("x")); got != "ERRORSTRING" {
		t.Fatalf("code = %q", got)
	}
}
