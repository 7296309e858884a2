package sni

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/snigate/internal/remotesigner"
)

func TestTLSVersionConversions(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS10), TLSVersion10.ToTLSVersion())
	assert.Equal(t, uint16(tls.VersionTLS13), TLSVersion13.ToTLSVersion())
	assert.Equal(t, uint16(0), TLSVersionAuto.ToTLSVersion())

	assert.True(t, TLSVersion10.IsLegacy())
	assert.True(t, TLSVersion11.IsLegacy())
	assert.False(t, TLSVersion12.IsLegacy())

	assert.True(t, TLSVersion("").IsValid())
	assert.False(t, TLSVersion("SSL3").IsValid())
}

func TestClientAuthPolicy(t *testing.T) {
	assert.Equal(t, tls.NoClientCert, ClientAuthNone.ToClientAuthType())
	assert.Equal(t, tls.VerifyClientCertIfGiven, ClientAuthVerifyIfGiven.ToClientAuthType())
	assert.Equal(t, tls.RequireAndVerifyClientCert, ClientAuthRequired.ToClientAuthType())
	assert.False(t, ClientAuthPolicy("MAYBE").IsValid())
}

func TestIdentityConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     IdentityConfig
		wantErr string
	}{
		{
			name:    "no certificates",
			cfg:     IdentityConfig{},
			wantErr: "at least one certificate",
		},
		{
			name: "missing cert file",
			cfg: IdentityConfig{
				Certificates: []CertEntry{{KeyFile: "k.pem"}},
			},
			wantErr: "certFile is required",
		},
		{
			name: "missing key without remote signer",
			cfg: IdentityConfig{
				Certificates: []CertEntry{{CertFile: "c.pem"}},
			},
			wantErr: "keyFile is required",
		},
		{
			name: "missing key with remote signer is fine",
			cfg: IdentityConfig{
				Certificates: []CertEntry{{CertFile: "c.pem"}},
				RemoteSigner: &remotesigner.Config{Address: "https://vault:8200", KeyName: "www"},
			},
		},
		{
			name: "bad version",
			cfg: IdentityConfig{
				Certificates: []CertEntry{{CertFile: "c.pem", KeyFile: "k.pem"}},
				MinVersion:   "TLS9",
			},
			wantErr: "unknown TLS version",
		},
		{
			name: "client auth without CA",
			cfg: IdentityConfig{
				Certificates: []CertEntry{{CertFile: "c.pem", KeyFile: "k.pem"}},
				ClientAuth:   ClientAuthRequired,
			},
			wantErr: "client CA required",
		},
		{
			name: "incomplete remote signer",
			cfg: IdentityConfig{
				Certificates: []CertEntry{{CertFile: "c.pem"}},
				RemoteSigner: &remotesigner.Config{Address: "https://vault:8200"},
			},
			wantErr: "keyName is required",
		},
		{
			name: "valid",
			cfg: IdentityConfig{
				Certificates: []CertEntry{{CertFile: "c.pem", KeyFile: "k.pem"}},
				MinVersion:   TLSVersion12,
				ClientAuth:   ClientAuthNone,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidationPolicyString(t *testing.T) {
	assert.Equal(t, "strict", PolicyStrict.String())
	assert.Equal(t, "lenient", PolicyLenient.String())
}
