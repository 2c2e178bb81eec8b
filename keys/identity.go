package keys

import (
	"crypto/x509"
	"fmt"
	"regexp"

	"github.com/hyperledger/fabric-gateway/pkg/identity"

	"xdao.co/titlegate/errkind"
)

var mspIDPattern = regexp.MustCompile(`^Org[0-9]+MSP$`)

// CheckMSPID validates the shape of an organization (MSP) identifier,
// e.g. "Org1MSP".
func CheckMSPID(id string) error {
	if !mspIDPattern.MatchString(id) {
		return fmt.Errorf("organization %q must look like Org<n>MSP", id)
	}
	return nil
}

// IdentityConfig locates the client credentials of one organization member.
type IdentityConfig struct {
	MSPID   string
	CertDir string
	KeyDir  string

	// Optional; DefaultCertPattern and DefaultKeyPattern apply when nil.
	CertPattern *regexp.Regexp
	KeyPattern  *regexp.Regexp
}

func (c IdentityConfig) certPattern() *regexp.Regexp {
	if c.CertPattern != nil {
		return c.CertPattern
	}
	return DefaultCertPattern
}

func (c IdentityConfig) keyPattern() *regexp.Regexp {
	if c.KeyPattern != nil {
		return c.KeyPattern
	}
	return DefaultKeyPattern
}

// LoadIdentity reads the member certificate and binds it to the MSP ID.
func LoadIdentity(cfg IdentityConfig) (*identity.X509Identity, error) {
	const op = "keys.LoadIdentity"
	path, err := FindFile(cfg.CertDir, cfg.certPattern())
	if err != nil {
		return nil, err
	}
	pemBytes, err := readFile(op, path)
	if err != nil {
		return nil, err
	}
	cert, err := identity.CertificateFromPEM(pemBytes)
	if err != nil {
		return nil, errkind.Wrap(errkind.CredentialUnreadable, op, fmt.Errorf("%s: %w", path, err))
	}
	id, err := identity.NewX509Identity(cfg.MSPID, cert)
	if err != nil {
		return nil, errkind.Wrap(errkind.CredentialUnreadable, op, err)
	}
	return id, nil
}

// LoadSigner reads the member private key and returns a signing function.
func LoadSigner(cfg IdentityConfig) (identity.Sign, error) {
	const op = "keys.LoadSigner"
	path, err := FindFile(cfg.KeyDir, cfg.keyPattern())
	if err != nil {
		return nil, err
	}
	pemBytes, err := readFile(op, path)
	if err != nil {
		return nil, err
	}
	key, err := identity.PrivateKeyFromPEM(pemBytes)
	if err != nil {
		// The path is safe to report; the key bytes are not.
		return nil, errkind.Wrap(errkind.CredentialUnreadable, op, fmt.Errorf("%s: %w", path, err))
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, errkind.Wrap(errkind.CredentialUnreadable, op, err)
	}
	return sign, nil
}

// LoadTrustRoot reads a PEM bundle of CA certificates used to verify the peer.
func LoadTrustRoot(path string) (*x509.CertPool, error) {
	const op = "keys.LoadTrustRoot"
	if path == "" {
		return nil, errkind.New(errkind.CredentialNotFound, op, "TLS certificate path is not configured")
	}
	pemBytes, err := readFile(op, path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, errkind.Newf(errkind.CredentialUnreadable, op, "no certificates in %s", path)
	}
	return pool, nil
}
