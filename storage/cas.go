package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is the content-addressable store that title documents are written to.
//
// Contract:
// - Put MUST be idempotent and MUST return the CID derived from the bytes (cidutil.Of).
// - Stored objects MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent.
// - Pin MUST ask the backend to retain id; pinning an absent CID returns ErrNotFound.
// - Network backends return an error wrapping ErrUnavailable when they cannot be reached.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
	Pin(ctx context.Context, id cid.Cid) error
}
