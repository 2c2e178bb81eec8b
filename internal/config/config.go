// Package config loads the gateway configuration: defaults, then an optional
// YAML file, then deployment environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/titlegate/errkind"
	"xdao.co/titlegate/keys"
	"xdao.co/titlegate/ledger"
	"xdao.co/titlegate/storage/casconfig"
)

type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Log          LogConfig           `yaml:"log"`
	Ledger       LedgerConfig        `yaml:"ledger"`
	ContentStore ContentStoreConfig  `yaml:"content_store"`
	Auth         AuthConfig          `yaml:"auth"`
	RateLimit    RateLimitConfig     `yaml:"rate_limit"`
	Errors       map[string][]string `yaml:"error_patterns"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies. Documents travel base64 encoded, so
	// the largest accepted document is about three quarters of this.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

type LedgerConfig struct {
	PeerEndpoint     string `yaml:"peer_endpoint"`
	PeerNameOverride string `yaml:"peer_name_override"`
	TLSCertPath      string `yaml:"tls_cert_path"`
	Channel          string `yaml:"channel"`
	Chaincode        string `yaml:"chaincode"`
	MSPID            string `yaml:"msp_id"`
	CertDir          string `yaml:"cert_dir"`
	KeyDir           string `yaml:"key_dir"`
	// Regular expressions selecting the certificate and key file names.
	CertPattern string `yaml:"cert_pattern"`
	KeyPattern  string `yaml:"key_pattern"`

	DialTimeout         time.Duration `yaml:"dial_timeout"`
	EvaluateTimeout     time.Duration `yaml:"evaluate_timeout"`
	EndorseTimeout      time.Duration `yaml:"endorse_timeout"`
	SubmitTimeout       time.Duration `yaml:"submit_timeout"`
	CommitStatusTimeout time.Duration `yaml:"commit_status_timeout"`
}

type ContentStoreConfig struct {
	casconfig.Config `yaml:",inline"`
	Timeout          time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Users     []User        `yaml:"users"`
}

// User is a login account. PasswordHash is a bcrypt hash.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Org          string `yaml:"org"`
}

// RateLimitConfig sets the token bucket per caller. Both values 0 disables
// rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              6060,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxBodyBytes:      32 << 20,
		},
		Log: LogConfig{Mode: "development"},
		Ledger: LedgerConfig{
			PeerEndpoint:        "localhost:7051",
			PeerNameOverride:    "peer0.org1.example.com",
			Channel:             "mychannel",
			Chaincode:           "landtitle",
			MSPID:               "Org1MSP",
			CertPattern:         keys.DefaultCertPattern.String(),
			KeyPattern:          keys.DefaultKeyPattern.String(),
			DialTimeout:         ledger.DefaultDialTimeout,
			EvaluateTimeout:     ledger.DefaultEvaluateTimeout,
			EndorseTimeout:      ledger.DefaultEndorseTimeout,
			SubmitTimeout:       ledger.DefaultSubmitTimeout,
			CommitStatusTimeout: ledger.DefaultCommitStatusTimeout,
		},
		ContentStore: ContentStoreConfig{
			Config: casconfig.Config{
				Backends: []casconfig.BackendConfig{
					{Name: "ipfs", Config: map[string]string{"api": "http://127.0.0.1:5001"}},
				},
			},
			Timeout: 60 * time.Second,
		},
		Auth:      AuthConfig{TokenTTL: time.Hour},
		RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when path
// is empty) and the environment, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides cfg with the deployment environment variables.
func ApplyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	str("CHANNEL_NAME", &cfg.Ledger.Channel)
	str("CHAINCODE_NAME", &cfg.Ledger.Chaincode)
	str("PEER_ENDPOINT", &cfg.Ledger.PeerEndpoint)
	str("MSP_ID", &cfg.Ledger.MSPID)
	str("KEY_DIRECTORY_PATH", &cfg.Ledger.KeyDir)
	str("CERT_DIRECTORY_PATH", &cfg.Ledger.CertDir)
	str("TLS_CERT_PATH", &cfg.Ledger.TLSCertPath)
	str("PEER_NAME_OVERRIDE", &cfg.Ledger.PeerNameOverride)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("LOG_MODE", &cfg.Log.Mode)

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("IPFS_API_URL")); v != "" {
		cfg.ContentStore.setIPFSAPI(v)
	}
	return nil
}

// setIPFSAPI points every ipfs backend at api, adding one if none is configured.
func (c *ContentStoreConfig) setIPFSAPI(api string) {
	found := false
	for i, b := range c.Backends {
		if b.Name != "ipfs" {
			continue
		}
		found = true
		cfg := make(map[string]string, len(b.Config)+1)
		for k, v := range b.Config {
			cfg[k] = v
		}
		cfg["api"] = api
		c.Backends[i].Config = cfg
	}
	if !found {
		c.Backends = append([]casconfig.BackendConfig{{Name: "ipfs", Config: map[string]string{"api": api}}}, c.Backends...)
	}
}

// RateLimitEnabled reports whether requests are rate limited.
func (c Config) RateLimitEnabled() bool {
	return c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst > 0
}

func (c Config) Validate() error {
	var errs []error
	need := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	need(c.Ledger.PeerEndpoint, "ledger.peer_endpoint")
	need(c.Ledger.Channel, "ledger.channel")
	need(c.Ledger.Chaincode, "ledger.chaincode")
	need(c.Ledger.CertDir, "ledger.cert_dir")
	need(c.Ledger.KeyDir, "ledger.key_dir")
	need(c.Ledger.TLSCertPath, "ledger.tls_cert_path")
	need(c.Auth.JWTSecret, "auth.jwt_secret")

	if err := keys.CheckMSPID(c.Ledger.MSPID); err != nil {
		errs = append(errs, fmt.Errorf("ledger.msp_id: %w", err))
	}
	for name, p := range map[string]string{"ledger.cert_pattern": c.Ledger.CertPattern, "ledger.key_pattern": c.Ledger.KeyPattern} {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if err := c.ContentStore.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes))
	}
	if rl := c.RateLimit; rl.RequestsPerSecond < 0 || rl.Burst < 0 || (rl.RequestsPerSecond == 0) != (rl.Burst == 0) {
		errs = append(errs, errors.New("rate_limit: set positive requests_per_second and burst, or both to 0 to disable"))
	}
	for _, u := range c.Auth.Users {
		if u.Username == "" || u.PasswordHash == "" {
			errs = append(errs, errors.New("auth.users entries need username and password_hash"))
		}
	}
	if _, err := c.Translator(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LedgerOptions converts the ledger section for ledger.NewManager.
func (c Config) LedgerOptions() ledger.Options {
	l := c.Ledger
	return ledger.Options{
		PeerEndpoint:       l.PeerEndpoint,
		ServerNameOverride: l.PeerNameOverride,
		TLSCertPath:        l.TLSCertPath,
		Channel:            l.Channel,
		Chaincode:          l.Chaincode,
		Identity: keys.IdentityConfig{
			MSPID:       l.MSPID,
			CertDir:     l.CertDir,
			KeyDir:      l.KeyDir,
			CertPattern: compileOrNil(l.CertPattern),
			KeyPattern:  compileOrNil(l.KeyPattern),
		},
		DialTimeout:         l.DialTimeout,
		EvaluateTimeout:     l.EvaluateTimeout,
		EndorseTimeout:      l.EndorseTimeout,
		SubmitTimeout:       l.SubmitTimeout,
		CommitStatusTimeout: l.CommitStatusTimeout,
	}
}

// Translator builds the ledger error translator, adding the configured
// message patterns (kind name -> substrings) after the defaults.
func (c Config) Translator() (*errkind.Translator, error) {
	t := errkind.NewTranslator()
	names := make([]string, 0, len(c.Errors))
	for name := range c.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kind, err := errkind.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("error_patterns: %w", err)
		}
		t.Add(kind, c.Errors[name]...)
	}
	return t, nil
}

func compileOrNil(p string) *regexp.Regexp {
	if p == "" {
		return nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil
	}
	return re
}
