// Package docstore uploads and fetches title documents through a lazily
// opened content-addressed store.
package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"xdao.co/titlegate/cidutil"
	"xdao.co/titlegate/errkind"
	"xdao.co/titlegate/logger"
	"xdao.co/titlegate/metrics"
	"xdao.co/titlegate/storage"
)

// OpenFunc opens the backing store. The returned close function may be nil.
type OpenFunc func(ctx context.Context) (storage.CAS, func() error, error)

const DefaultTimeout = 60 * time.Second

type Options struct {
	// Timeout bounds each Upload and Fetch, including the first open.
	Timeout time.Duration
}

type Client struct {
	open    OpenFunc
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	group   singleflight.Group
	mu      sync.RWMutex
	cas     storage.CAS
	closeFn func() error
}

func New(open OpenFunc, log *logger.Logger, m *metrics.Metrics, opts Options) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{open: open, opts: opts, log: log.With("component", "docstore"), metrics: m}
}

// Upload stores data, pins it and returns its content address. Identical
// bytes always yield the same address.
func (c *Client) Upload(ctx context.Context, data []byte) (string, error) {
	const op = "docstore.Upload"
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	addr, err := c.upload(ctx, data)
	if err != nil {
		err = classify(op, err, errkind.StoreWriteFailed)
		c.metrics.ObserveStore("upload", string(errkind.KindOf(err)), time.Since(start))
		c.log.Warn("document upload failed", "bytes", len(data), "error", err)
		return "", err
	}
	c.metrics.ObserveStore("upload", "ok", time.Since(start))
	c.metrics.AddUploadedBytes(len(data))
	c.log.Debug("document stored", "cid", addr, "bytes", len(data))
	return addr, nil
}

func (c *Client) upload(ctx context.Context, data []byte) (string, error) {
	cas, err := c.store(ctx)
	if err != nil {
		return "", err
	}
	id, err := cas.Put(ctx, data)
	if err != nil {
		return "", err
	}
	if err := cas.Pin(ctx, id); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Fetch returns the document stored under address.
func (c *Client) Fetch(ctx context.Context, address string) ([]byte, error) {
	const op = "docstore.Fetch"
	id, err := cidutil.Parse(address)
	if err != nil {
		return nil, errkind.Wrap(errkind.ValidationFailed, op, err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	cas, err := c.store(ctx)
	if err == nil {
		var b []byte
		if b, err = cas.Get(ctx, id); err == nil {
			c.metrics.ObserveStore("fetch", "ok", time.Since(start))
			return b, nil
		}
	}
	if storage.IsNotFound(err) {
		err = errkind.Newf(errkind.NotFound, op, "document %s is not in the content store", id)
	} else {
		err = classify(op, err, errkind.Unknown)
	}
	c.metrics.ObserveStore("fetch", string(errkind.KindOf(err)), time.Since(start))
	return nil, err
}

// store returns the opened CAS, opening it on first use. A failed open is
// retried by the next caller.
func (c *Client) store(ctx context.Context) (storage.CAS, error) {
	c.mu.RLock()
	cas := c.cas
	c.mu.RUnlock()
	if cas != nil {
		return cas, nil
	}

	v, err, _ := c.group.Do("open", func() (any, error) {
		c.mu.RLock()
		existing := c.cas
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		cas, closeFn, err := c.open(context.WithoutCancel(ctx))
		if err != nil {
			return nil, errkind.Wrap(errkind.StoreUnavailable, "docstore.Open", err)
		}
		c.mu.Lock()
		c.cas, c.closeFn = cas, closeFn
		c.mu.Unlock()
		c.log.Info("content store opened")
		return cas, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(storage.CAS), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	closeFn := c.closeFn
	c.cas, c.closeFn = nil, nil
	c.mu.Unlock()
	if closeFn == nil {
		return nil
	}
	return closeFn()
}

// classify maps storage failures onto the taxonomy. Unreachable stores and
// timeouts become StoreUnavailable; fallback covers the rest.
func classify(op string, err error, fallback errkind.Kind) error {
	var structured *errkind.Error
	if errors.As(err, &structured) {
		return err
	}
	if storage.IsUnavailable(err) || errors.Is(err, context.DeadlineExceeded) {
		return errkind.Wrap(errkind.StoreUnavailable, op, err)
	}
	return errkind.Wrap(fallback, op, err)
}
