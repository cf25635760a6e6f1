package callbacks

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type sample struct {
	V int    `json:"v"`
	K string `json:"k"`
	P string `json:"p,omitempty"`
}

func TestParse(t *testing.T) {
	cases := []struct {
		cb      *tele.Callback
		key     string
		payload string
	}{
		{nil, "", ""},
		{&tele.Callback{Unique: "shop", Data: `{"v":1}`}, "shop", `{"v":1}`},
		{&tele.Callback{Data: "\fshop|" + `{"p":"a|b"}`}, "shop", `{"p":"a|b"}`},
		{&tele.Callback{Data: "plain"}, "plain", ""},
	}
	for _, tc := range cases {
		key, payload := Parse(tc.cb)
		if key != tc.key || payload != tc.payload {
			t.Errorf("Parse(%+v) = %q, %q; want %q, %q", tc.cb, key, payload, tc.key, tc.payload)
		}
	}
}

func TestEncodeDecodeKeepsSeparators(t *testing.T) {
	in := sample{V: 1, K: "add", P: "x|y:z"}
	data, err := Encode("shop", in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out sample
	if err := Decode(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode("shop", sample{V: 1, K: "add", P: strings.Repeat("x", 60)})
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
}

func TestDecodeRejectsLegacyFormat(t *testing.T) {
	var out sample
	if err := Decode("add|saffron|10g", &out); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}
