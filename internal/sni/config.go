package sni

import (
	"crypto/tls"

	"github.com/vyrodovalexey/snigate/internal/remotesigner"
)

// TLSVersion represents a TLS protocol version in configuration.
type TLSVersion string

// TLS version constants.
const (
	// TLSVersionAuto lets the engine choose.
	TLSVersionAuto TLSVersion = "AUTO"

	// TLSVersion10 represents TLS 1.0 (legacy, requires explicit opt-in).
	TLSVersion10 TLSVersion = "TLS10"

	// TLSVersion11 represents TLS 1.1 (legacy, requires explicit opt-in).
	TLSVersion11 TLSVersion = "TLS11"

	// TLSVersion12 represents TLS 1.2 (minimum default).
	TLSVersion12 TLSVersion = "TLS12"

	// TLSVersion13 represents TLS 1.3 (preferred).
	TLSVersion13 TLSVersion = "TLS13"
)

// IsValid returns true if the TLS version is valid.
func (v TLSVersion) IsValid() bool {
	switch v {
	case TLSVersionAuto, TLSVersion10, TLSVersion11, TLSVersion12, TLSVersion13, "":
		return true
	default:
		return false
	}
}

// IsLegacy returns true for protocol versions below TLS 1.2.
func (v TLSVersion) IsLegacy() bool {
	return v == TLSVersion10 || v == TLSVersion11
}

// ToTLSVersion converts to a crypto/tls version constant.
func (v TLSVersion) ToTLSVersion() uint16 {
	switch v {
	case TLSVersion10:
		return tls.VersionTLS10
	case TLSVersion11:
		return tls.VersionTLS11
	case TLSVersion12:
		return tls.VersionTLS12
	case TLSVersion13:
		return tls.VersionTLS13
	case TLSVersionAuto:
		return 0 // Let the engine choose
	default:
		return tls.VersionTLS12 // Safe default
	}
}

// ClientAuthPolicy selects the verification policy for client certificates.
type ClientAuthPolicy string

// Client auth policies.
const (
	// ClientAuthNone disables client certificates.
	ClientAuthNone ClientAuthPolicy = "NONE"

	// ClientAuthVerifyIfGiven verifies a client certificate when presented.
	ClientAuthVerifyIfGiven ClientAuthPolicy = "VERIFY_IF_GIVEN"

	// ClientAuthRequired requires and verifies a client certificate.
	ClientAuthRequired ClientAuthPolicy = "REQUIRED"
)

// IsValid returns true if the policy is valid.
func (p ClientAuthPolicy) IsValid() bool {
	switch p {
	case ClientAuthNone, ClientAuthVerifyIfGiven, ClientAuthRequired, "":
		return true
	default:
		return false
	}
}

// ToClientAuthType converts to a crypto/tls client auth constant.
func (p ClientAuthPolicy) ToClientAuthType() tls.ClientAuthType {
	switch p {
	case ClientAuthVerifyIfGiven:
		return tls.VerifyClientCertIfGiven
	case ClientAuthRequired:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.NoClientCert
	}
}

// CertEntry describes one certificate/key file pair destined for an identity.
type CertEntry struct {
	// CertFile is the path to the PEM certificate chain.
	CertFile string `yaml:"certFile"`

	// KeyFile is the path to the PEM private key. Ignored when the identity
	// uses a remote signer.
	KeyFile string `yaml:"keyFile"`

	// PasswordFile optionally points to a file holding the key passphrase.
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// IdentityConfig is the specification of one TLS server identity: an ordered
// certificate bundle plus the protocol options applied to its context.
type IdentityConfig struct {
	// Certificates is the ordered certificate bundle. Every certificate must
	// carry the same CN and SAN set.
	Certificates []CertEntry `yaml:"certificates"`

	// MinVersion and MaxVersion bound the protocol version.
	MinVersion TLSVersion `yaml:"minVersion,omitempty"`
	MaxVersion TLSVersion `yaml:"maxVersion,omitempty"`

	// CipherSuites is the primary explicit cipher list. Unknown names fail
	// identity construction.
	CipherSuites []string `yaml:"cipherSuites,omitempty"`

	// LegacyCipherSuites is a secondary cipher list applied only to clients
	// that cannot negotiate TLS 1.2 or newer.
	LegacyCipherSuites []string `yaml:"legacyCipherSuites,omitempty"`

	// CurvePreferences names the elliptic curves offered for ECDHE.
	CurvePreferences []string `yaml:"curvePreferences,omitempty"`

	// ALPN is the advertised next-protocol list.
	ALPN []string `yaml:"alpn,omitempty"`

	// ClientCAFile is the trust bundle for client certificates.
	ClientCAFile string `yaml:"clientCAFile,omitempty"`

	// ClientAuth is the client certificate verification policy.
	ClientAuth ClientAuthPolicy `yaml:"clientAuth,omitempty"`

	// SessionTicketsDisabled turns off stateless session resumption.
	SessionTicketsDisabled bool `yaml:"sessionTicketsDisabled,omitempty"`

	// Default marks this identity as the fallback served when no SNI is
	// presented or no other identity matches. At most one identity per batch
	// may be the default.
	Default bool `yaml:"default,omitempty"`

	// RemoteSigner, when set, keeps the private key out of process: handshake
	// signatures are produced by the remote signing service instead of a
	// local key.
	RemoteSigner *remotesigner.Config `yaml:"remoteSigner,omitempty"`
}

// Validate checks the identity specification for structural errors.
func (c *IdentityConfig) Validate() error {
	if len(c.Certificates) == 0 {
		return NewConfigurationError("certificates", "at least one certificate is required")
	}
	for _, entry := range c.Certificates {
		if entry.CertFile == "" {
			return NewConfigurationError("certificates", "certFile is required")
		}
		if entry.KeyFile == "" && c.RemoteSigner == nil {
			return NewConfigurationError("certificates",
				"keyFile is required unless a remote signer is configured")
		}
	}
	if !c.MinVersion.IsValid() {
		return NewConfigurationError("minVersion", "unknown TLS version: "+string(c.MinVersion))
	}
	if !c.MaxVersion.IsValid() {
		return NewConfigurationError("maxVersion", "unknown TLS version: "+string(c.MaxVersion))
	}
	if !c.ClientAuth.IsValid() {
		return NewConfigurationError("clientAuth", "unknown client auth policy: "+string(c.ClientAuth))
	}
	if c.ClientAuth != "" && c.ClientAuth != ClientAuthNone && c.ClientCAFile == "" {
		return NewConfigurationError("clientCAFile", "client CA required for client auth")
	}
	if c.RemoteSigner != nil {
		if err := c.RemoteSigner.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidationPolicy controls how per-name index registration failures are
// handled.
type ValidationPolicy int

// Validation policies.
const (
	// PolicyStrict aborts the enclosing bundle on the first malformed name.
	PolicyStrict ValidationPolicy = iota

	// PolicyLenient logs malformed names and continues with the rest of the
	// bundle's names.
	PolicyLenient
)

// String returns the string representation of the policy.
func (p ValidationPolicy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "lenient"
}
