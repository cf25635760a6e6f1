package logger

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterFlushSeesPriorWrites(t *testing.T) {
	var a, b bytes.Buffer
	w := newAsyncWriter([]io.Writer{&a, nil, &b}, 16)
	for _, line := range []string{"one\n", "two\n", "three\n"} {
		if err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if a.String() != "one\ntwo\nthree\n" || b.String() != a.String() {
		t.Fatalf("sinks = %q / %q", a.String(), b.String())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
}

func TestAsyncWriterReportsFirstError(t *testing.T) {
	w := newAsyncWriter([]io.Writer{failingWriter{}}, 1)
	_ = w.Write([]byte("a line longer than the buffer\n"))
	if err := w.Flush(); err == nil {
		t.Fatal("expected flush error")
	}
	if err := w.Write([]byte("x")); err == nil {
		t.Fatal("expected sticky write error")
	}
	if err := w.Close(); err == nil {
		t.Fatal("expected close error")
	}
}
