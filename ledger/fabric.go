package ledger

import (
	"context"
	"fmt"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"

	"xdao.co/titlegate/keys"
)

// Transport is the gRPC channel to the peer.
type Transport interface {
	grpc.ClientConnInterface
	Close() error
}

// Gateway is a connected Fabric Gateway.
type Gateway interface {
	Contract(channel, chaincode string) Contract
	Close() error
}

// Contract submits and evaluates transactions of one deployed chaincode.
type Contract interface {
	Submit(ctx context.Context, name string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, name string, args ...string) ([]byte, error)
	Channel() string
	Chaincode() string
}

type (
	// Dialer opens the transport. It must not return before the channel is
	// usable or ctx is done.
	Dialer func(ctx context.Context, opts Options) (Transport, error)
	// Connector binds a transport and an identity to a gateway.
	Connector func(conn Transport, id identity.Identity, sign identity.Sign, opts Options) (Gateway, error)
	// Credentials loads the client identity and its signer.
	Credentials func(cfg keys.IdentityConfig) (identity.Identity, identity.Sign, error)
)

func loadCredentials(cfg keys.IdentityConfig) (identity.Identity, identity.Sign, error) {
	id, err := keys.LoadIdentity(cfg)
	if err != nil {
		return nil, nil, err
	}
	sign, err := keys.LoadSigner(cfg)
	if err != nil {
		return nil, nil, err
	}
	return id, sign, nil
}

// dialTLS opens a TLS channel verified against opts.TLSCertPath and waits for
// it to become ready.
func dialTLS(ctx context.Context, opts Options) (Transport, error) {
	pool, err := keys.LoadTrustRoot(opts.TLSCertPath)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewClientTLSFromCert(pool, opts.ServerNameOverride)
	conn, err := grpc.NewClient(opts.PeerEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, err
	}

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return conn, nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			_ = conn.Close()
			return nil, fmt.Errorf("peer %s not ready (last state %s): %w", opts.PeerEndpoint, state, ctx.Err())
		}
	}
}

func connectGateway(conn Transport, id identity.Identity, sign identity.Sign, opts Options) (Gateway, error) {
	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(opts.EvaluateTimeout),
		client.WithEndorseTimeout(opts.EndorseTimeout),
		client.WithSubmitTimeout(opts.SubmitTimeout),
		client.WithCommitStatusTimeout(opts.CommitStatusTimeout),
	)
	if err != nil {
		return nil, err
	}
	return fabricGateway{gw: gw}, nil
}

type fabricGateway struct {
	gw *client.Gateway
}

func (g fabricGateway) Contract(channel, chaincode string) Contract {
	return fabricContract{
		contract:  g.gw.GetNetwork(channel).GetContract(chaincode),
		channel:   channel,
		chaincode: chaincode,
	}
}

func (g fabricGateway) Close() error { return g.gw.Close() }

type fabricContract struct {
	contract  *client.Contract
	channel   string
	chaincode string
}

func (c fabricContract) Submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.contract.SubmitWithContext(ctx, name, client.WithArguments(args...))
}

func (c fabricContract) Evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.contract.EvaluateWithContext(ctx, name, client.WithArguments(args...))
}

func (c fabricContract) Channel() string   { return c.channel }
func (c fabricContract) Chaincode() string { return c.chaincode }
