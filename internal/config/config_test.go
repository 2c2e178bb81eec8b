package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xdao.co/titlegate/errkind"
)

func TestLoadFileThenEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CHAINCODE_NAME", "landtitle-v2")
	t.Setenv("IPFS_API_URL", "http://127.0.0.1:5002")

	cfg, err := Load(filepath.Join("testdata", "titlegate.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Log.Mode != "production" {
		t.Fatalf("file values not applied: %+v %+v", cfg.Server, cfg.Log)
	}
	if cfg.Ledger.Channel != "landchannel" || cfg.Ledger.EndorseTimeout != 30*time.Second {
		t.Fatalf("ledger section not applied: %+v", cfg.Ledger)
	}
	if cfg.Ledger.SubmitTimeout != 5*time.Second {
		t.Fatalf("defaults should survive a partial file, got %s", cfg.Ledger.SubmitTimeout)
	}
	if cfg.Auth.JWTSecret != "from-env" || cfg.Ledger.Chaincode != "landtitle-v2" {
		t.Fatalf("environment should override the file")
	}
	if cfg.ContentStore.WritePolicy != "all" || len(cfg.ContentStore.Backends) != 2 || cfg.ContentStore.Timeout != 2*time.Minute {
		t.Fatalf("content store not applied: %+v", cfg.ContentStore)
	}
	if got := cfg.ContentStore.Backends[0].Config["api"]; got != "http://127.0.0.1:5002" {
		t.Fatalf("IPFS_API_URL not applied, api=%q", got)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Org != "Org1MSP" {
		t.Fatalf("users not parsed: %+v", cfg.Auth.Users)
	}

	opts := cfg.LedgerOptions()
	if opts.Identity.MSPID != "Org1MSP" || opts.Identity.KeyPattern == nil || opts.ServerNameOverride != "peer0.org1.example.com" {
		t.Fatalf("unexpected ledger options %+v", opts)
	}
}

func TestConfiguredErrorPatterns(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	cfg, err := Load(filepath.Join("testdata", "titlegate.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := cfg.Translator()
	if err != nil {
		t.Fatal(err)
	}
	if k := errkind.KindOf(tr.Translate("read", errors.New("le titre foncier LT1 n'existe pas"))); k != errkind.NotFound {
		t.Fatalf("expected NotFound, got %s", k)
	}
}

func TestEnvOnly(t *testing.T) {
	t.Setenv("PEER_ENDPOINT", "peer0:7051")
	t.Setenv("MSP_ID", "Org2MSP")
	t.Setenv("CERT_DIRECTORY_PATH", "/c")
	t.Setenv("KEY_DIRECTORY_PATH", "/k")
	t.Setenv("TLS_CERT_PATH", "/tls.crt")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PORT", "7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 || cfg.Ledger.MSPID != "Org2MSP" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ContentStore.Backends[0].Name != "ipfs" {
		t.Fatalf("expected default ipfs backend")
	}
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Ledger.MSPID = "org1"
	cfg.Errors = map[string][]string{"Bogus": {"x"}}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"ledger.cert_dir", "auth.jwt_secret", "ledger.msp_id", "error_patterns"} {
		if !containsErr(err, want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.Ledger.CertDir = "/msp/signcerts"
	cfg.Ledger.KeyDir = "/msp/keystore"
	cfg.Ledger.TLSCertPath = "/tls/ca.crt"
	cfg.Auth.JWTSecret = "secret"
	return cfg
}

func TestRateLimitSettings(t *testing.T) {
	cases := []struct {
		rps     float64
		burst   int
		ok      bool
		enabled bool
	}{
		{10, 20, true, true},
		{0, 0, true, false},
		{0, 5, false, false},
		{5, 0, false, false},
		{-1, 5, false, false},
		{5, -1, false, false},
	}
	for _, tc := range cases {
		cfg := validConfig()
		cfg.RateLimit = RateLimitConfig{RequestsPerSecond: tc.rps, Burst: tc.burst}
		err := cfg.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("rps=%v burst=%d: ok=%v, err=%v", tc.rps, tc.burst, tc.ok, err)
		}
		if tc.ok && cfg.RateLimitEnabled() != tc.enabled {
			t.Fatalf("rps=%v burst=%d: enabled=%v", tc.rps, tc.burst, cfg.RateLimitEnabled())
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	cfg := validConfig()
	if cfg.Server.MaxBodyBytes != 32<<20 {
		t.Fatalf("default max_body_bytes = %d", cfg.Server.MaxBodyBytes)
	}
	cfg.Server.MaxBodyBytes = 0
	if err := cfg.Validate(); !containsErr(err, "server.max_body_bytes") {
		t.Fatalf("expected max_body_bytes error, got %v", err)
	}

	cfg, err := Load(filepath.Join("testdata", "titlegate.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.MaxBodyBytes != 64<<20 {
		t.Fatalf("max_body_bytes from file = %d", cfg.Server.MaxBodyBytes)
	}
}

func TestBadPort(t *testing.T) {
	t.Setenv("PORT", "http")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric PORT")
	}
}

func containsErr(err error, s string) bool {
	return err != nil && strings.Contains(err.Error(), s)
}
