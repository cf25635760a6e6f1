package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()

	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if d.SentCount() != 1 || d.ErrorCount() != 0 {
		t.Fatalf("sent=%d errors=%d", d.SentCount(), d.ErrorCount())
	}
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		calls.Add(1)
		return errors.New("telegram: chat not found (400)")
	})
	d.Close()
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("errors = %d, want 1", d.ErrorCount())
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()
	if err := d.Enqueue(context.Background(), "a", "b", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	started := make(chan struct{})
	_ = d.Enqueue(context.Background(), "a", "", func() error { close(started); <-block; return nil })
	<-started
	_ = d.Enqueue(context.Background(), "b", "", func() error { return nil })
	err := d.Enqueue(context.Background(), "c", "", func() error { return nil })
	close(block)
	d.Close()
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestClassifyAndSanitize(t *testing.T) {
	if got := classifyError(errors.New("telegram: Internal Server Error (500)")); got != "http_5xx" {
		t.Fatalf("classify = %q", got)
	}
	if got := classifyError(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("classify = %q", got)
	}
	msg := sanitizeErrorMessage(errors.New("Post https://api.telegram.org/bot123:ABC-def/sendMessage: EOF"))
	if msg != "Post https://api.telegram.org/bot<redacted>/sendMessage: EOF" {
		t.Fatalf("sanitize = %q", msg)
	}
}
