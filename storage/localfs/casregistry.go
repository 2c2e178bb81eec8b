package localfs

import (
	"fmt"
	"strings"

	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon | casregistry.UsageGateway,
		Options: map[string]string{
			"dir": "CAS root directory",
		},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			dir := strings.TrimSpace(cfg["dir"])
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing option \"dir\"")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
