package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/titlegate/cidutil"
	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/testkit"
)

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: testkit.NewMemCAS()},
			{Name: "b", CAS: testkit.NewMemCAS()},
		}}
	})
}

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{testkit.NewMemCAS(), testkit.NewMemCAS()}}
	})
}

func TestReplicatingCAS_WritesAndPinsEverywhere(t *testing.T) {
	ctx := context.Background()
	a, b := testkit.NewMemCAS(), testkit.NewMemCAS()
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}}}

	id, per, err := r.PutAll(ctx, []byte("survey plan"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(per) != 2 || !per["a"].Equals(id) || !per["b"].Equals(id) {
		t.Fatalf("unexpected per-backend CIDs: %v", per)
	}
	if err := r.Pin(ctx, id); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if !a.Pinned(id) || !b.Pinned(id) {
		t.Fatalf("expected both replicas pinned")
	}
}

func TestReplicatingCAS_BackendFailureNamesBackend(t *testing.T) {
	bad := testkit.NewMemCAS()
	bad.PutErr = fmt.Errorf("disk full: %w", storage.ErrUnavailable)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "ok", CAS: testkit.NewMemCAS()}, {Name: "bad", CAS: bad}}}

	_, _, err := r.PutAll(context.Background(), []byte("x"))
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMultiCAS_GetSkipsUnavailable(t *testing.T) {
	ctx := context.Background()
	down := testkit.NewMemCAS()
	up := testkit.NewMemCAS()
	data := []byte("mirror copy")
	if _, err := up.Put(ctx, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	id, _ := cidutil.Of(data)

	m := storage.MultiCAS{Adapters: []storage.CAS{unavailableGets{down}, up}}
	got, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("payload mismatch")
	}
}

type unavailableGets struct{ *testkit.MemCAS }

func (unavailableGets) Get(context.Context, cid.Cid) ([]byte, error) {
	return nil, storage.ErrUnavailable
}
