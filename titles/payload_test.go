package titles

import (
	"encoding/json"
	"testing"
)

func TestDecodePayload(t *testing.T) {
	cases := []struct {
		in   string
		want PayloadKind
	}{
		{"", PayloadEmpty},
		{"  \n", PayloadEmpty},
		{`{"ID":"a"}`, PayloadStructured},
		{`[]`, PayloadStructured},
		{`null`, PayloadStructured},
		{`"quoted"`, PayloadStructured},
		{"title transferred", PayloadRaw},
		{"{broken", PayloadRaw},
	}
	for _, tc := range cases {
		if got := DecodePayload([]byte(tc.in)).Kind(); got != tc.want {
			t.Fatalf("%q: got %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestPayloadAccessors(t *testing.T) {
	p := DecodePayload([]byte(" {\"Owner\":\"Alice\"} "))
	raw, ok := p.Structured()
	if !ok || string(raw) != `{"Owner":"Alice"}` {
		t.Fatalf("unexpected structured payload %q", raw)
	}
	if _, ok := p.Raw(); ok {
		t.Fatalf("structured payload reported raw")
	}
	var v struct{ Owner string }
	if err := p.Decode(&v); err != nil || v.Owner != "Alice" {
		t.Fatalf("Decode: %v %+v", err, v)
	}

	r := DecodePayload([]byte("ok"))
	if s, ok := r.Raw(); !ok || s != "ok" {
		t.Fatalf("unexpected raw payload %q", s)
	}
	if err := r.Decode(&v); err == nil {
		t.Fatalf("raw payload must not decode")
	}
}

func TestPayloadMarshalJSON(t *testing.T) {
	cases := map[string]string{
		"":           `{"p":null}`,
		`{"a":1}`:    `{"p":{"a":1}}`,
		"plain text": `{"p":"plain text"}`,
	}
	for in, want := range cases {
		b, err := json.Marshal(struct {
			P Payload `json:"p"`
		}{DecodePayload([]byte(in))})
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != want {
			t.Fatalf("%q: got %s, want %s", in, b, want)
		}
	}
}
