package ledger

import (
	"time"

	"xdao.co/titlegate/keys"
)

// Options configures the connection to one Fabric Gateway peer.
type Options struct {
	PeerEndpoint string
	// ServerNameOverride replaces the host name checked against the peer's
	// TLS certificate, e.g. "peer0.org1.example.com" when dialing localhost.
	ServerNameOverride string
	TLSCertPath        string

	Channel   string
	Chaincode string

	Identity keys.IdentityConfig

	DialTimeout         time.Duration
	EvaluateTimeout     time.Duration
	EndorseTimeout      time.Duration
	SubmitTimeout       time.Duration
	CommitStatusTimeout time.Duration
}

const (
	DefaultDialTimeout         = 5 * time.Second
	DefaultEvaluateTimeout     = 5 * time.Second
	DefaultEndorseTimeout      = 15 * time.Second
	DefaultSubmitTimeout       = 5 * time.Second
	DefaultCommitStatusTimeout = time.Minute
)

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.EvaluateTimeout <= 0 {
		o.EvaluateTimeout = DefaultEvaluateTimeout
	}
	if o.EndorseTimeout <= 0 {
		o.EndorseTimeout = DefaultEndorseTimeout
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = DefaultSubmitTimeout
	}
	if o.CommitStatusTimeout <= 0 {
		o.CommitStatusTimeout = DefaultCommitStatusTimeout
	}
	return o
}
