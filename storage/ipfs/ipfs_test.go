package ipfs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/titlegate/cidutil"
	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/ipfs/ipfstest"
	"xdao.co/titlegate/storage/testkit"
)

func newTestCAS(t *testing.T, h http.Handler) *CAS {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cas, err := New(Options{APIURL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cas
}

func TestIPFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return newTestCAS(t, ipfstest.NewKubo())
	})
}

func TestIPFS_PinIsRecorded(t *testing.T) {
	kubo := ipfstest.NewKubo()
	cas := newTestCAS(t, kubo)
	ctx := context.Background()

	id, err := cas.Put(ctx, []byte("title deed"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cas.Pin(ctx, id); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if !kubo.Pinned(id.String()) {
		t.Fatalf("expected %s pinned on the node", id)
	}
	for _, p := range kubo.OfflinePaths() {
		if p == "/api/v0/block/put" {
			t.Fatalf("block/put must not run offline")
		}
	}
}

func TestIPFS_CIDMismatch(t *testing.T) {
	kubo := ipfstest.NewKubo()
	kubo.LieKey = cidutil.Address([]byte("something else"))
	cas := newTestCAS(t, kubo)

	_, err := cas.Put(context.Background(), []byte("real bytes"))
	if !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestIPFS_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cas, err := New(Options{APIURL: url, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = cas.Put(context.Background(), []byte("x"))
	if !storage.IsUnavailable(err) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestIPFS_GatewayErrorIsUnavailable(t *testing.T) {
	cas := newTestCAS(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := cas.Put(context.Background(), []byte("x"))
	if !storage.IsUnavailable(err) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://node:5001", "://bad"} {
		if _, err := New(Options{APIURL: raw}); err == nil {
			t.Fatalf("New(%q): expected error", raw)
		}
	}
}

func TestIPFS_DocumentSizes(t *testing.T) {
	kubo := ipfstest.NewKubo()
	cas := newTestCAS(t, kubo)
	ctx := context.Background()

	for _, n := range []int{0, 1, 4 << 10, MaxBitswapBlock - 1, MaxBitswapBlock, MaxBitswapBlock + 1, 3 << 20} {
		t.Run(fmt.Sprintf("%d", n), func(t *testing.T) {
			data := sizedDocument(n)
			id, err := cas.Put(ctx, data)
			if err != nil {
				t.Fatalf("Put(%d bytes): %v", n, err)
			}
			if !id.Equals(mustCID(t, data)) {
				t.Fatalf("Put(%d bytes) returned %s, want the raw sha2-256 address", n, id)
			}
			if err := cas.Pin(ctx, id); err != nil {
				t.Fatalf("Pin: %v", err)
			}
			got, err := cas.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got) != n {
				t.Fatalf("Get returned %d bytes, want %d", len(got), n)
			}
		})
	}
}

func TestIPFS_BigBlockFlagOnlyWhenNeeded(t *testing.T) {
	var (
		mu    sync.Mutex
		flags []string
	)
	kubo := ipfstest.NewKubo()
	cas := newTestCAS(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v0/block/put" {
			mu.Lock()
			flags = append(flags, r.URL.Query().Get("allow-big-block"))
			mu.Unlock()
		}
		kubo.ServeHTTP(w, r)
	}))
	ctx := context.Background()
	if _, err := cas.Put(ctx, sizedDocument(MaxBitswapBlock)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := cas.Put(ctx, sizedDocument(MaxBitswapBlock+1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(flags) != 2 || flags[0] != "" || flags[1] != "true" {
		t.Fatalf("allow-big-block flags = %q, want [\"\" \"true\"]", flags)
	}
}

func sizedDocument(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i/251)
	}
	return b
}

func mustCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	id, err := cidutil.Of(data)
	if err != nil {
		t.Fatalf("cidutil.Of: %v", err)
	}
	return id
}
