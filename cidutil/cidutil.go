// Package cidutil derives the content addresses used for title documents.
//
// Every document address handed to the ledger is a CIDv1 with the "raw"
// multicodec and a sha2-256 multihash, so the address is a pure function of
// the document bytes.
package cidutil

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Of returns the CIDv1 (raw + sha2-256) derived from data.
func Of(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Address returns the string form of Of(data).
func Address(data []byte) string {
	id, err := Of(data)
	if err != nil {
		// multihash.Sum only fails for unknown codes or bad lengths.
		return ""
	}
	return id.String()
}

// Parse decodes a document address. Empty and undefined CIDs are rejected.
func Parse(address string) (cid.Cid, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return cid.Undef, fmt.Errorf("cidutil: empty address")
	}
	id, err := cid.Decode(address)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: decode %q: %w", address, err)
	}
	if !id.Defined() {
		return cid.Undef, fmt.Errorf("cidutil: undefined cid %q", address)
	}
	return id, nil
}

// Matches reports whether data hashes to id under the raw + sha2-256 contract.
func Matches(id cid.Cid, data []byte) bool {
	got, err := Of(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}
