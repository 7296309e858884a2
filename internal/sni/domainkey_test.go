package sni

import (
	"crypto/tls"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomainName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain name", input: "example.com", want: "example.com"},
		{name: "uppercase folded", input: "EXAMPLE.Com", want: "example.com"},
		{name: "trailing dot stripped", input: "example.com.", want: "example.com"},
		{name: "wildcard to suffix", input: "*.example.com", want: ".example.com"},
		{name: "uppercase wildcard", input: "*.EXAMPLE.COM", want: ".example.com"},
		{name: "empty name", input: "", wantErr: true},
		{name: "bare dot", input: ".", wantErr: true},
		{name: "wildcard without dot", input: "*example.com", wantErr: true},
		{name: "bare wildcard dot", input: "*.", wantErr: true},
		{name: "embedded wildcard", input: "www.*.example.com", wantErr: true},
		{name: "wildcard after first label", input: "*.ex*.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeDomainName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCertCryptoOf(t *testing.T) {
	tests := []struct {
		name string
		alg  x509.SignatureAlgorithm
		want CertCrypto
	}{
		{name: "sha256 rsa", alg: x509.SHA256WithRSA, want: CryptoBestAvailable},
		{name: "sha256 ecdsa", alg: x509.ECDSAWithSHA256, want: CryptoBestAvailable},
		{name: "ed25519", alg: x509.PureEd25519, want: CryptoBestAvailable},
		{name: "sha1 rsa", alg: x509.SHA1WithRSA, want: CryptoLegacySHA1},
		{name: "sha1 ecdsa", alg: x509.ECDSAWithSHA1, want: CryptoLegacySHA1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leaf := &x509.Certificate{SignatureAlgorithm: tt.alg}
			assert.Equal(t, tt.want, CertCryptoOf(leaf))
		})
	}
}

func TestRequestedCrypto(t *testing.T) {
	tests := []struct {
		name  string
		hints ClientHints
		want  CertCrypto
	}{
		{
			name: "strong scheme",
			hints: ClientHints{
				SignatureSchemes: []tls.SignatureScheme{tls.PSSWithSHA256},
			},
			want: CryptoBestAvailable,
		},
		{
			name: "sni only",
			hints: ClientHints{
				ServerNameSent: true,
			},
			want: CryptoBestAvailable,
		},
		{
			name: "weak schemes and no sni",
			hints: ClientHints{
				SignatureSchemes: []tls.SignatureScheme{tls.PKCS1WithSHA1, tls.ECDSAWithSHA1},
			},
			want: CryptoLegacySHA1,
		},
		{
			name:  "no signals at all",
			hints: ClientHints{},
			want:  CryptoLegacySHA1,
		},
		{
			name: "weak schemes but sni sent",
			hints: ClientHints{
				ServerNameSent:   true,
				SignatureSchemes: []tls.SignatureScheme{tls.PKCS1WithSHA1},
			},
			want: CryptoBestAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hints.RequestedCrypto())
		})
	}
}

func TestHintsFromClientHello(t *testing.T) {
	assert.Equal(t, ClientHints{}, HintsFromClientHello(nil))

	hello := &tls.ClientHelloInfo{
		ServerName:       "example.com",
		SignatureSchemes: []tls.SignatureScheme{tls.PSSWithSHA256},
	}
	hints := HintsFromClientHello(hello)
	assert.True(t, hints.ServerNameSent)
	assert.Equal(t, hello.SignatureSchemes, hints.SignatureSchemes)
}
