package titles

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type PayloadKind int

const (
	PayloadEmpty PayloadKind = iota
	PayloadStructured
	PayloadRaw
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadEmpty:
		return "empty"
	case PayloadStructured:
		return "structured"
	case PayloadRaw:
		return "raw"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Payload is a transaction result: nothing, a JSON document, or plain text.
type Payload struct {
	kind PayloadKind
	json json.RawMessage
	text string
}

// DecodePayload classifies a raw ledger response. Blank input is Empty,
// valid JSON is Structured and anything else is kept as Raw text.
func DecodePayload(b []byte) Payload {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0:
		return Payload{kind: PayloadEmpty}
	case json.Valid(trimmed):
		return Payload{kind: PayloadStructured, json: append(json.RawMessage(nil), trimmed...)}
	default:
		return Payload{kind: PayloadRaw, text: string(b)}
	}
}

func (p Payload) Kind() PayloadKind { return p.kind }

func (p Payload) Structured() (json.RawMessage, bool) {
	return p.json, p.kind == PayloadStructured
}

func (p Payload) Raw() (string, bool) {
	return p.text, p.kind == PayloadRaw
}

// Decode unmarshals a Structured payload into v.
func (p Payload) Decode(v any) error {
	if p.kind != PayloadStructured {
		return fmt.Errorf("titles: cannot decode %s payload", p.kind)
	}
	return json.Unmarshal(p.json, v)
}

// MarshalJSON renders Empty as null, Structured verbatim and Raw as a string.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case PayloadStructured:
		return p.json, nil
	case PayloadRaw:
		return json.Marshal(p.text)
	default:
		return []byte("null"), nil
	}
}
