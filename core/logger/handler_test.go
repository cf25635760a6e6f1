package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func capture(t *testing.T, format logFormat, emit func(log *slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	emit(slog.New(handler))
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	line := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", CompCheckout), slog.LevelInfo, "checkout.transition",
			slog.String("status", "ok"),
			Stage("awaiting_shipping"),
			slog.String("cause", "unit"),
		)
	})

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=checkout", "event=checkout.transition", "status=ok", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	if strings.Index(line, "stage=") > strings.Index(line, "cause=") {
		t.Fatalf("stage should precede cause: %s", line)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithRID(Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	line := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", CompOrders), slog.LevelError, "orders.mark_paid",
			slog.String("status", "failed"),
			Err(errors.New("boom")),
			slog.String("err_code", "NOT_FOUND"),
		)
	})

	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.orders"`, `"event":"orders.mark_paid"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := "123:456:789"
	ctx := WithRID(Background(), rawRID)

	kv := capture(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	if !strings.Contains(kv, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", kv)
	}
	if strings.Contains(kv, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", kv)
	}

	js := capture(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	if !strings.Contains(js, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", js)
	}
	if !strings.Contains(js, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", js)
	}
	if !strings.Contains(js, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano in JSON output, got %s", js)
	}
}

func TestStructuredHandlerContextOrderAndDefaults(t *testing.T) {
	ctx := WithOrderID(WithChatID(context.Background(), 77), "00ff00ff00ff00ff")

	line := capture(t, formatKV, func(log *slog.Logger) {
		log.LogAttrs(ctx, slog.LevelWarn, "webhook.order_not_found",
			slog.Duration("duration", 1500*time.Microsecond),
			slog.String("empty", ""),
		)
	})

	for _, want := range []string{"component=app", "event=webhook.order_not_found", "chat_id=77", "order_id=00ff00ff00ff00ff", "duration_ms=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %s", want, line)
		}
	}
	if strings.Contains(line, "empty=") {
		t.Fatalf("empty values should be pruned: %s", line)
	}
}

func TestCompactRIDLeavesForeignFormats(t *testing.T) {
	cases := map[string]string{
		"1:2:3":   "1.2.3",
		"35:36:0": "z.10.0",
		"a:b:c":   "a:b:c",
		"plain":   "plain",
	}
	for in, want := range cases {
		if got := CompactRID(in); got != want {
			t.Errorf("CompactRID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("ab\x00c\td\u200b", 10); got != "abc\td" {
		t.Fatalf("sanitize = %q", got)
	}
	if got := SanitizeLimit("шафран", 3); got != "шаф" {
		t.Fatalf("limit = %q", got)
	}
}

func TestRatioSamplerBasic(t *testing.T) {
	s := newRatioSampler(1, 3)
	var allowed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}
	if n, d := parseRatio("10"); n != 1 || d != 10 {
		t.Fatalf("parseRatioSpec(10) = %d/%d", n, d)
	}
}
