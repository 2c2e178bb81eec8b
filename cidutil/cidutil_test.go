package cidutil

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"
)

func TestOfDeterministic(t *testing.T) {
	data := []byte("deed of sale, parcel 42")
	a, err := Of(data)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	b, err := Of(bytes.Clone(data))
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if !a.Equals(b) {
		t.Fatalf("expected identical CIDs, got %s and %s", a, b)
	}
	if a.Prefix().Codec != cid.Raw {
		t.Fatalf("expected raw codec, got %d", a.Prefix().Codec)
	}
	if a.Version() != 1 {
		t.Fatalf("expected CIDv1, got v%d", a.Version())
	}
}

func TestAddressDiffersByContent(t *testing.T) {
	if Address([]byte("a")) == Address([]byte("b")) {
		t.Fatalf("different content produced the same address")
	}
	if Address(nil) == "" {
		t.Fatalf("empty content must still have an address")
	}
}

func TestParse(t *testing.T) {
	addr := Address([]byte("hello"))
	id, err := Parse(" " + addr + "\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.String() != addr {
		t.Fatalf("round trip mismatch: %s vs %s", id, addr)
	}
	for _, bad := range []string{"", "   ", "not-a-cid"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q): expected error", bad)
		}
	}
}

func TestMatches(t *testing.T) {
	id, err := Of([]byte("original"))
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if !Matches(id, []byte("original")) {
		t.Fatalf("expected match")
	}
	if Matches(id, []byte("tampered")) {
		t.Fatalf("expected mismatch")
	}
}
