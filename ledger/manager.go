// Package ledger owns the process-wide connection to a Fabric Gateway peer.
//
// A Manager dials lazily on the first Contract call and caches the channel,
// the gateway and the contract handle until Close. Concurrent first callers
// share one connection attempt; a failed attempt is not cached.
package ledger

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"xdao.co/titlegate/errkind"
	"xdao.co/titlegate/logger"
	"xdao.co/titlegate/metrics"
)

type Option func(*Manager)

// WithDialer replaces the TLS gRPC dialer.
func WithDialer(d Dialer) Option { return func(m *Manager) { m.dial = d } }

// WithConnector replaces the fabric-gateway client.Connect step.
func WithConnector(c Connector) Option { return func(m *Manager) { m.connect = c } }

// WithCredentials replaces loading the identity from the filesystem.
func WithCredentials(c Credentials) Option { return func(m *Manager) { m.credentials = c } }

type connection struct {
	transport Transport
	gateway   Gateway
	contract  Contract
}

type Manager struct {
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	dial        Dialer
	connect     Connector
	credentials Credentials

	group singleflight.Group
	mu    sync.RWMutex
	conn  *connection
}

func NewManager(opts Options, log *logger.Logger, m *metrics.Metrics, o ...Option) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	mgr := &Manager{
		opts:        opts.withDefaults(),
		log:         log.With("component", "ledger"),
		metrics:     m,
		dial:        dialTLS,
		connect:     connectGateway,
		credentials: loadCredentials,
	}
	for _, fn := range o {
		fn(mgr)
	}
	return mgr
}

// Contract returns the cached contract handle, connecting first if needed.
func (m *Manager) Contract(ctx context.Context) (Contract, error) {
	if c := m.cached(); c != nil {
		return c, nil
	}
	v, err, _ := m.group.Do("connect", func() (any, error) {
		if c := m.cached(); c != nil {
			return c, nil
		}
		// The attempt is shared, so one caller's cancellation must not fail
		// the others. DialTimeout still bounds it.
		conn, err := m.open(context.WithoutCancel(ctx))
		if err != nil {
			m.metrics.IncLedgerConnect("error")
			return nil, err
		}
		m.metrics.IncLedgerConnect("ok")
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		return conn.contract, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Contract), nil
}

func (m *Manager) cached() Contract {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil
	}
	return m.conn.contract
}

func (m *Manager) open(ctx context.Context) (*connection, error) {
	const op = "ledger.Connect"
	start := time.Now()

	id, sign, err := m.credentials(m.opts.Identity)
	if err != nil {
		m.log.Error("load identity failed", "mspId", m.opts.Identity.MSPID, "error", err)
		return nil, errkind.Wrap(errkind.IdentityFailed, op, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()
	transport, err := m.dial(dialCtx, m.opts)
	if err != nil {
		m.log.Error("dial peer failed", "endpoint", m.opts.PeerEndpoint, "error", err)
		return nil, errkind.Wrap(errkind.ConnectionFailed, op, err)
	}

	gw, err := m.connect(transport, id, sign, m.opts)
	if err != nil {
		_ = transport.Close()
		m.log.Error("gateway connect failed", "endpoint", m.opts.PeerEndpoint, "error", err)
		return nil, errkind.Wrap(errkind.ConnectionFailed, op, err)
	}

	contract := &instrumented{
		Contract: gw.Contract(m.opts.Channel, m.opts.Chaincode),
		metrics:  m.metrics,
	}
	m.log.Info("connected to gateway",
		"endpoint", m.opts.PeerEndpoint,
		"mspId", id.MspID(),
		"channel", m.opts.Channel,
		"chaincode", m.opts.Chaincode,
		"elapsed", time.Since(start),
	)
	return &connection{transport: transport, gateway: gw, contract: contract}, nil
}

// Close tears down the gateway and then the transport. A later Contract call
// connects again.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	gwErr := conn.gateway.Close()
	tErr := conn.transport.Close()
	if gwErr != nil {
		return gwErr
	}
	return tErr
}

type instrumented struct {
	Contract
	metrics *metrics.Metrics
}

func (c *instrumented) Submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	start := time.Now()
	out, err := c.Contract.Submit(ctx, name, args...)
	c.metrics.ObserveLedger(name, "submit", result(err), time.Since(start))
	return out, err
}

func (c *instrumented) Evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	start := time.Now()
	out, err := c.Contract.Evaluate(ctx, name, args...)
	c.metrics.ObserveLedger(name, "evaluate", result(err), time.Since(start))
	return out, err
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
