// Package ipfstest provides an in-memory Kubo RPC node for tests.
package ipfstest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"xdao.co/titlegate/cidutil"
)

// BlockLimit is the size above which Kubo refuses block/put unless
// allow-big-block is set.
const BlockLimit = 1 << 20

// Kubo serves block/put, block/get, block/stat and pin/add.
type Kubo struct {
	// LieKey, when set, is reported as the key of every block/put.
	LieKey string

	mu      sync.Mutex
	blocks  map[string][]byte
	pins    map[string]bool
	offline []string
}

func NewKubo() *Kubo {
	return &Kubo{blocks: map[string][]byte{}, pins: map[string]bool{}}
}

// Start serves k on a test server closed at cleanup and returns its URL.
func (k *Kubo) Start(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(k)
	t.Cleanup(srv.Close)
	return srv.URL
}

func (k *Kubo) Pinned(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pins[key]
}

func (k *Kubo) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.blocks)
}

// OfflinePaths lists the RPC paths that were called with offline=true.
func (k *Kubo) OfflinePaths() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.offline...)
}

type stat struct {
	Key  string `json:"Key"`
	Size int64  `json:"Size"`
}

func (k *Kubo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	arg := q.Get("arg")

	if r.URL.Path == "/api/v0/block/put" {
		k.put(w, r)
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if q.Get("offline") == "true" {
		k.offline = append(k.offline, r.URL.Path)
	}
	switch r.URL.Path {
	case "/api/v0/block/get":
		b, ok := k.blocks[arg]
		if !ok {
			fail(w, "block was not found locally (offline): ipld: could not find "+arg)
			return
		}
		_, _ = w.Write(b)
	case "/api/v0/block/stat":
		b, ok := k.blocks[arg]
		if !ok {
			fail(w, "block was not found locally (offline): ipld: could not find "+arg)
			return
		}
		_ = json.NewEncoder(w).Encode(stat{Key: arg, Size: int64(len(b))})
	case "/api/v0/pin/add":
		if _, ok := k.blocks[arg]; !ok {
			fail(w, "pin: block was not found locally (offline): ipld: could not find "+arg)
			return
		}
		k.pins[arg] = true
		_ = json.NewEncoder(w).Encode(map[string][]string{"Pins": {arg}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (k *Kubo) put(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("cid-codec") != "raw" || q.Get("mhtype") != "sha2-256" {
		fail(w, "unexpected block/put parameters")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		fail(w, err.Error())
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		fail(w, err.Error())
		return
	}
	if len(data) > BlockLimit && q.Get("allow-big-block") != "true" {
		fail(w, "produced block is over 1MiB: big blocks can't be exchanged with other peers. consider using UnixFS for automatic chunking of bigger files, or pass --allow-big-block to override")
		return
	}

	key := cidutil.Address(data)
	k.mu.Lock()
	k.blocks[key] = data
	lie := k.LieKey
	k.mu.Unlock()
	if lie != "" {
		key = lie
	}
	_ = json.NewEncoder(w).Encode(stat{Key: key, Size: int64(len(data))})
}

func fail(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"Message": msg, "Code": 0, "Type": "error"})
}
