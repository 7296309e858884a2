package sni

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testCertPair is one generated certificate/key pair on disk.
type testCertPair struct {
	certFile string
	keyFile  string
}

// certPairSeq keeps generated pair filenames unique so two pairs with the
// same CN in one directory never overwrite each other.
var certPairSeq atomic.Int64

// writeTestCertPair generates a self-signed ECDSA certificate with the given
// CN and DNS SANs and writes the PEM pair under dir.
func writeTestCertPair(t *testing.T, dir, cn string, dnsNames []string) testCertPair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"Test Org"},
		},
		DNSNames:              dnsNames,
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	base := fmt.Sprintf("%s-%d", cn, certPairSeq.Add(1))
	pair := testCertPair{
		certFile: filepath.Join(dir, base+".crt"),
		keyFile:  filepath.Join(dir, base+".key"),
	}
	require.NoError(t, os.WriteFile(pair.certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(pair.keyFile, keyPEM, 0o600))
	return pair
}

// identityConfigFor builds an IdentityConfig around one generated pair.
func identityConfigFor(pair testCertPair, def bool) IdentityConfig {
	return IdentityConfig{
		Certificates: []CertEntry{{CertFile: pair.certFile, KeyFile: pair.keyFile}},
		Default:      def,
	}
}

// makeIdentity constructs an index-only identity without certificate files,
// for tests exercising registration and lookup semantics directly.
func makeIdentity(cn string, sans []string, crypto CertCrypto, def bool) *Identity {
	return &Identity{
		ID:              cn + "/" + crypto.String(),
		CommonName:      cn,
		SubjectAltNames: sans,
		Crypto:          crypto,
		Default:         def,
		config:          &tls.Config{},
	}
}
