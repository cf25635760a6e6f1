package bot

import (
	"errors"
	"fmt"

	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	"github.com/m3rciful/shopbot/shop/checkout"
	"github.com/m3rciful/shopbot/shop/domain"
)

// CallbackKey is the registry key of every storefront button.
const CallbackKey = "shop"

const payloadVersion = 1

// ErrStalePayload is returned for payloads written by another version or
// naming an unknown kind.
var ErrStalePayload = errors.New("bot: stale callback payload")

type payload struct {
	V int    `json:"v"`
	K string `json:"k"`
	P string `json:"p,omitempty"`
	S string `json:"s,omitempty"`
	M string `json:"m,omitempty"`
	O string `json:"o,omitempty"`
}

// EncodeEvent renders ev as button callback data.
func EncodeEvent(ev checkout.Event) (string, error) {
	return callbacks.Encode(CallbackKey, payload{
		V: payloadVersion,
		K: string(ev.Kind),
		P: ev.Action.Product,
		S: ev.Action.Size,
		M: string(ev.Action.Method),
		O: ev.Action.OrderID,
	})
}

// DecodeEvent parses callback data produced by EncodeEvent.
func DecodeEvent(data string) (checkout.Event, error) {
	var p payload
	if err := callbacks.Decode(data, &p); err != nil {
		return checkout.Event{}, err
	}
	if p.V != payloadVersion {
		return checkout.Event{}, fmt.Errorf("%w: version %d", ErrStalePayload, p.V)
	}
	ev := checkout.Event{
		Kind:   checkout.Kind(p.K),
		Action: checkout.Action{Product: p.P, Size: p.S, OrderID: p.O},
	}
	if !knownKind(ev.Kind) || ev.Kind == checkout.KindText {
		return checkout.Event{}, fmt.Errorf("%w: kind %q", ErrStalePayload, p.K)
	}
	if p.M != "" {
		m, ok := domain.ParseMethod(p.M)
		if !ok {
			return checkout.Event{}, fmt.Errorf("%w: method %q", ErrStalePayload, p.M)
		}
		ev.Action.Method = m
	}
	return ev, nil
}

func knownKind(k checkout.Kind) bool {
	for _, kind := range checkout.Kinds() {
		if kind == k {
			return true
		}
	}
	return false
}
