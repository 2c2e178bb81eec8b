package ipfs

import (
	"fmt"
	"strings"
	"time"

	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "IPFS Kubo node over its RPC API",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon | casregistry.UsageGateway,
		Options: map[string]string{
			"api":     "Kubo RPC URL (default http://127.0.0.1:5001)",
			"timeout": "per-RPC timeout, Go duration (default 60s)",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			opts := Options{APIURL: cfg["api"]}
			if raw := strings.TrimSpace(cfg["timeout"]); raw != "" {
				d, err := time.ParseDuration(raw)
				if err != nil {
					return nil, nil, fmt.Errorf("ipfs: invalid timeout %q: %w", raw, err)
				}
				opts.Timeout = d
			}
			cas, err := New(opts)
			return cas, nil, err
		},
	})
}
