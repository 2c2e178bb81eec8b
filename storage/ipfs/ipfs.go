package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/titlegate/cidutil"
	"xdao.co/titlegate/storage"
)

// CAS is a content-addressable store backed by a Kubo node's RPC API
// (normally http://127.0.0.1:5001).
//
// Documents are written as raw blocks (CIDv1 raw + sha2-256), so the CID the
// node reports must equal cidutil.Of(data); anything else is ErrCIDMismatch.
// Blocks over MaxBitswapBlock are written with allow-big-block: the node stores
// and pins them, but peers fetching them over bitswap will refuse them, so
// replicate large documents through the node's own pin or a cluster, not the DHT.
// Reads and pins run with offline=true: a block this gateway did not write is
// reported as ErrNotFound instead of triggering a DHT search.
type CAS struct {
	base   *url.URL
	client *http.Client
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// APIURL is the Kubo RPC endpoint. If empty, http://127.0.0.1:5001 is used.
	APIURL string
	// Timeout bounds every RPC when HTTPClient is nil. Zero means 60s.
	Timeout time.Duration
	// HTTPClient overrides the client used for RPCs.
	HTTPClient *http.Client
}

const defaultAPI = "http://127.0.0.1:5001"

// MaxBitswapBlock is Kubo's default block size limit for block/put.
const MaxBitswapBlock = 1 << 20

func New(opts Options) (*CAS, error) {
	raw := strings.TrimSpace(opts.APIURL)
	if raw == "" {
		raw = defaultAPI
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ipfs: invalid api url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ipfs: api url %q must be http or https", raw)
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &CAS{base: u, client: client}, nil
}

type blockStat struct {
	Key  string `json:"Key"`
	Size int64  `json:"Size"`
}

type rpcError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "blob")
	if err != nil {
		return cid.Undef, err
	}
	if _, err := part.Write(data); err != nil {
		return cid.Undef, err
	}
	if err := mw.Close(); err != nil {
		return cid.Undef, err
	}

	q := url.Values{}
	q.Set("cid-codec", "raw")
	q.Set("mhtype", "sha2-256")
	q.Set("mhlen", "32")
	if len(data) > MaxBitswapBlock {
		q.Set("allow-big-block", "true")
	}
	out, err := c.call(ctx, "block/put", q, mw.FormDataContentType(), &body)
	if err != nil {
		return cid.Undef, err
	}

	var stat blockStat
	if err := json.Unmarshal(out, &stat); err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block/put output: %w", err)
	}
	got, err := cid.Decode(strings.TrimSpace(stat.Key))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block/put key: %w", err)
	}
	if !got.Equals(want) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := c.call(ctx, "block/get", offlineArg(id), "", nil)
	if err != nil {
		return nil, err
	}
	if !cidutil.Matches(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.call(ctx, "block/stat", offlineArg(id), "", nil)
	return err == nil
}

func (c *CAS) Pin(ctx context.Context, id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	_, err := c.call(ctx, "pin/add", offlineArg(id), "", nil)
	return err
}

func offlineArg(id cid.Cid) url.Values {
	q := url.Values{}
	q.Set("arg", id.String())
	q.Set("offline", "true")
	return q
}

// call issues a Kubo RPC. Kubo only accepts POST on /api/v0.
func (c *CAS) call(ctx context.Context, cmd string, q url.Values, contentType string, body io.Reader) ([]byte, error) {
	u := c.base.JoinPath("api", "v0", cmd)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipfs: %s: read response: %w: %w", cmd, storage.ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusOK {
		return out, nil
	}

	var rerr rpcError
	if json.Unmarshal(out, &rerr) == nil && rerr.Message != "" {
		if isLikelyNotFound(rerr.Message) {
			return nil, fmt.Errorf("ipfs: %s: %s: %w", cmd, rerr.Message, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("ipfs: %s: %s", cmd, rerr.Message)
	}
	if resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout {
		return nil, fmt.Errorf("ipfs: %s: http %d: %w", cmd, resp.StatusCode, storage.ErrUnavailable)
	}
	return nil, fmt.Errorf("ipfs: %s: http %d: %s", cmd, resp.StatusCode, strings.TrimSpace(string(out)))
}

// classifyTransport marks every failure to reach the node as ErrUnavailable.
// Caller cancellation is passed through untouched.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("ipfs: %w: %w", storage.ErrUnavailable, err)
}

func isLikelyNotFound(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}
