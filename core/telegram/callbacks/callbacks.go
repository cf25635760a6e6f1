// Package callbacks encodes and decodes inline button callback data.
//
// Telebot transmits callback data as "\f<unique>|<payload>". The payload produced here is
// a small versioned JSON document so that identifiers containing separators survive the
// round trip unchanged.
package callbacks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// MaxData is the Telegram limit for callback_data in bytes.
const MaxData = 64

var (
	// ErrTooLong is returned when an encoded payload would exceed MaxData.
	ErrTooLong = errors.New("callbacks: payload exceeds callback data limit")
	// ErrMalformed is returned for payloads that are not valid JSON documents.
	ErrMalformed = errors.New("callbacks: malformed payload")
)

// Parse splits callback data into the registry key and the payload.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Key returns the registry key of the current callback.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the payload of the current callback.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}

// Encode marshals v as JSON and verifies that "\f<key>|<json>" fits into MaxData.
func Encode(key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("callbacks: encode: %w", err)
	}
	if n := len(key) + len(data) + 2; n > MaxData {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLong, n)
	}
	return string(data), nil
}

// Decode unmarshals the callback payload into v.
func Decode(payload string, v any) error {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload[0] != '{' {
		return ErrMalformed
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
