package testkit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ipfs/go-cid"

	"xdao.co/titlegate/cidutil"
	"xdao.co/titlegate/storage"
)

// MemCAS is an in-memory storage.CAS for tests.
//
// PutErr and PinErr, when set, are returned by every call to the matching
// method. Call counters are safe for concurrent use.
type MemCAS struct {
	mu      sync.Mutex
	objects map[string][]byte
	pinned  map[string]bool

	PutErr error
	PinErr error

	Puts atomic.Int64
	Pins atomic.Int64
	Gets atomic.Int64
}

var _ storage.CAS = (*MemCAS)(nil)

func NewMemCAS() *MemCAS {
	return &MemCAS{objects: map[string][]byte{}, pinned: map[string]bool{}}
}

func (m *MemCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	m.Puts.Add(1)
	if m.PutErr != nil {
		return cid.Undef, m.PutErr
	}
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id.String()]; !ok {
		m.objects[id.String()] = append([]byte(nil), data...)
	}
	return id, nil
}

func (m *MemCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	m.Gets.Add(1)
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[id.String()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemCAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id.String()]
	return ok
}

func (m *MemCAS) Pin(ctx context.Context, id cid.Cid) error {
	m.Pins.Add(1)
	if m.PinErr != nil {
		return m.PinErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id.String()]; !ok {
		return storage.ErrNotFound
	}
	m.pinned[id.String()] = true
	return nil
}

// Pinned reports whether id was pinned.
func (m *MemCAS) Pinned(id cid.Cid) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned[id.String()]
}

// Len returns the number of stored objects.
func (m *MemCAS) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
