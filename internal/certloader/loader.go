// Package certloader reads PEM certificate chains and private keys from disk
// and extracts the identity attributes the routing index is built from. It
// deliberately knows nothing about routing; callers wrap its errors with their
// own context.
package certloader

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Bundle is one loaded certificate with the attributes used for registration.
type Bundle struct {
	// Certificate is the chain plus private key, ready for crypto/tls. For
	// remotely signed identities PrivateKey is nil until the caller installs
	// a signer.
	Certificate tls.Certificate

	// Leaf is the parsed end-entity certificate.
	Leaf *x509.Certificate

	// CommonName is the leaf's subject CN.
	CommonName string

	// SubjectAltNames is the leaf's DNS SAN list, sorted and deduplicated.
	SubjectAltNames []string

	// Path is the certificate file the bundle was loaded from.
	Path string
}

// Load reads a certificate chain and its private key. passwordFile may name a
// file holding the passphrase for an encrypted legacy PEM key; it is ignored
// for unencrypted keys.
func Load(certFile, keyFile, passwordFile string) (*Bundle, error) {
	bundle, err := LoadCertificateOnly(certFile)
	if err != nil {
		return nil, err
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", keyFile, err)
	}

	key, err := parsePrivateKey(keyPEM, passwordFile)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", keyFile, err)
	}

	if err := matchKeyPair(bundle.Leaf, key); err != nil {
		return nil, fmt.Errorf("key %s: %w", keyFile, err)
	}

	bundle.Certificate.PrivateKey = key
	return bundle, nil
}

// LoadCertificateOnly reads a certificate chain without a private key, for
// identities whose signing happens remotely.
func LoadCertificateOnly(certFile string) (*Bundle, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("reading certificate %s: %w", certFile, err)
	}

	var chain [][]byte
	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no certificate found in %s", certFile)
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("parsing certificate %s: %w", certFile, err)
	}

	return &Bundle{
		Certificate: tls.Certificate{
			Certificate: chain,
			Leaf:        leaf,
		},
		Leaf:            leaf,
		CommonName:      leaf.Subject.CommonName,
		SubjectAltNames: dnsNames(leaf),
		Path:            certFile,
	}, nil
}

// LoadClientCAs reads a PEM trust bundle into a certificate pool.
func LoadClientCAs(caFile string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading client CA %s: %w", caFile, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no CA certificates found in %s", caFile)
	}
	return pool, nil
}

// dnsNames returns the leaf's DNS SANs, sorted and deduplicated.
func dnsNames(leaf *x509.Certificate) []string {
	if len(leaf.DNSNames) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(leaf.DNSNames))
	names := make([]string, 0, len(leaf.DNSNames))
	for _, name := range leaf.DNSNames {
		lower := strings.ToLower(name)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		names = append(names, lower)
	}
	sort.Strings(names)
	return names
}

// parsePrivateKey parses the first private key block in keyPEM, decrypting
// legacy encrypted PEM blocks with the passphrase from passwordFile.
func parsePrivateKey(keyPEM []byte, passwordFile string) (crypto.PrivateKey, error) {
	rest := keyPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no private key found")
		}
		if !strings.Contains(block.Type, "PRIVATE KEY") {
			continue
		}

		der := block.Bytes
		//nolint:staticcheck // legacy encrypted PEM keys still appear in the field
		if x509.IsEncryptedPEMBlock(block) {
			if passwordFile == "" {
				return nil, errors.New("key is encrypted but no password file is configured")
			}
			password, err := readPassword(passwordFile)
			if err != nil {
				return nil, err
			}
			//nolint:staticcheck
			der, err = x509.DecryptPEMBlock(block, password)
			if err != nil {
				return nil, fmt.Errorf("decrypting key: %w", err)
			}
		}

		return parseKeyDER(der)
	}
}

// parseKeyDER tries the three DER key encodings crypto/x509 understands.
func parseKeyDER(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key encoding")
}

// readPassword reads and trims a passphrase file.
func readPassword(passwordFile string) ([]byte, error) {
	data, err := os.ReadFile(passwordFile)
	if err != nil {
		return nil, fmt.Errorf("reading password file %s: %w", passwordFile, err)
	}
	return []byte(strings.TrimRight(string(data), "\r\n")), nil
}

// matchKeyPair verifies the private key belongs to the leaf certificate.
func matchKeyPair(leaf *x509.Certificate, key crypto.PrivateKey) error {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return errors.New("private key does not implement crypto.Signer")
	}

	switch pub := leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := signer.Public().(*rsa.PublicKey)
		if !ok || !pub.Equal(priv) {
			return errors.New("private key does not match certificate public key")
		}
	case *ecdsa.PublicKey:
		priv, ok := signer.Public().(*ecdsa.PublicKey)
		if !ok || !pub.Equal(priv) {
			return errors.New("private key does not match certificate public key")
		}
	case ed25519.PublicKey:
		priv, ok := signer.Public().(ed25519.PublicKey)
		if !ok || !pub.Equal(priv) {
			return errors.New("private key does not match certificate public key")
		}
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
	return nil
}
