// Package keys loads Fabric client credentials from the filesystem.
//
// Credentials are laid out the way cryptogen and fabric-ca write them: a
// signcerts directory holding the X.509 certificate and a keystore directory
// holding the PKCS#8 private key, usually named "<ski>_sk". Within a
// directory the first file (in name order) matching the pattern wins; when
// several files match, the rest are ignored.
//
// Nothing in this package writes or modifies credential material.
package keys
