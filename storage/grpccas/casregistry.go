package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to titlegate-casd)",
		Usage:       casregistry.UsageCLI | casregistry.UsageGateway,
		Options: map[string]string{
			"target":        "gRPC target host:port",
			"dial-timeout":  "wait for the channel to become ready (default 5s)",
			"timeout":       "per-RPC timeout (default none)",
			"max-msg-bytes": "max gRPC message size in bytes (send+recv)",
			"tls-ca":        "PEM bundle to verify the daemon; enables TLS",
			"server-name":   "expected daemon certificate name",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(cfg["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpccas: missing option \"target\"")
			}
			opts := DialOptions{
				Timeout:    5 * time.Second,
				TLSCACert:  cfg["tls-ca"],
				ServerName: cfg["server-name"],
			}
			var err error
			if opts.Timeout, err = durationOpt(cfg, "dial-timeout", opts.Timeout); err != nil {
				return nil, nil, err
			}
			rpcTimeout, err := durationOpt(cfg, "timeout", 0)
			if err != nil {
				return nil, nil, err
			}
			if raw := strings.TrimSpace(cfg["max-msg-bytes"]); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					return nil, nil, fmt.Errorf("grpccas: invalid max-msg-bytes %q", raw)
				}
				opts.MaxMsgBytes = n
			}
			client, err := Dial(target, opts)
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = rpcTimeout
			return client, client.Close, nil
		},
	})
}

func durationOpt(cfg map[string]string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(cfg[key])
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("grpccas: invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
