package telegram

import (
	"testing"

	"github.com/m3rciful/shopbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryListCommandsUsesPosition(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/cart", commands.Command{Handler: noop, Description: "Cart", Position: 2})
	reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start", Position: 0})
	reg.RegisterCommand("/shop", commands.Command{Handler: noop, Description: "Shop", Position: 1})
	reg.RegisterCommand("/order", commands.Command{Handler: noop, Description: "Order", AdminOnly: true, Hidden: true})

	got := reg.ListCommands(true)
	want := []string{"start", "shop", "cart"}
	if len(got) != len(want) {
		t.Fatalf("commands = %+v", got)
	}
	for i, name := range want {
		if got[i].Text != name {
			t.Fatalf("command %d = %q, want %q", i, got[i].Text, name)
		}
	}
	if len(reg.ListCommands(false)) != 4 {
		t.Fatal("hidden commands should be listed when visibleOnly is false")
	}
}

func TestRegistryLookupCommand(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/cart", commands.Command{Handler: noop, Description: "Cart", Aliases: []string{"🛒 Cart"}})
	reg.RegisterCommand("/bad", commands.Command{Description: "no handler"})
	reg.RegisterCommand("noslash", commands.Command{Handler: noop, Description: "x"})

	for _, text := range []string{"/cart", "/cart@shop_bot", "/cart now", "cart", "🛒 Cart", " 🛒 cart "} {
		key, _, ok := reg.LookupCommand(text)
		if !ok || key != "/cart" {
			t.Errorf("LookupCommand(%q) = %q, %v", text, key, ok)
		}
	}
	for _, text := range []string{"", "/bad", "noslash", "hello"} {
		if _, _, ok := reg.LookupCommand(text); ok {
			t.Errorf("LookupCommand(%q) unexpectedly matched", text)
		}
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("shop", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCallback("shop", noop); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.RegisterCallback("", noop); err == nil {
		t.Fatal("expected invalid registration error")
	}
	if _, ok := reg.GetCallback("shop"); !ok {
		t.Fatal("callback not found")
	}
	if keys := reg.ListCallbacks(); len(keys) != 1 || keys[0] != "shop" {
		t.Fatalf("keys = %v", keys)
	}
}
