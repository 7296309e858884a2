package sni

import (
	"crypto/tls"

	"github.com/vyrodovalexey/snigate/internal/certloader"
	"github.com/vyrodovalexey/snigate/internal/session"
)

// Identity is one built TLS server identity: its certificate bundle, the
// ready-to-serve tls.Config, and the attributes it is registered under in the
// domain index. Identities are immutable once published.
type Identity struct {
	// ID is a unique identifier assigned at build time, used to correlate log
	// lines across reconfigurations.
	ID string

	// CommonName is the Subject CN shared by every certificate in the bundle.
	CommonName string

	// SubjectAltNames is the DNS SAN set shared by every certificate in the
	// bundle.
	SubjectAltNames []string

	// Crypto is the tier of the bundle's weakest leaf signature.
	Crypto CertCrypto

	// Default marks the identity served when no SNI is presented or nothing
	// matches.
	Default bool

	// SessionTicketsDisabled mirrors the identity's resumption setting.
	SessionTicketsDisabled bool

	// Seeds is the ticket seed triple this identity was configured with. The
	// manager harvests it when a rebuild omits explicit seeds.
	Seeds session.TicketSeeds

	config       *tls.Config
	legacyConfig *tls.Config
	bundles      []*certloader.Bundle
	cache        *session.Cache
}

// Config returns the identity's primary tls.Config.
func (id *Identity) Config() *tls.Config {
	return id.config
}

// ConfigFor returns the tls.Config to serve the given client. Clients that
// cannot negotiate TLS 1.2 or newer are moved to the legacy cipher band when
// one is configured.
func (id *Identity) ConfigFor(hello *tls.ClientHelloInfo) *tls.Config {
	if id.legacyConfig == nil || hello == nil {
		return id.config
	}
	for _, v := range hello.SupportedVersions {
		if v >= tls.VersionTLS12 {
			return id.config
		}
	}
	return id.legacyConfig
}

// Bundles returns the identity's certificate bundles in configuration order.
func (id *Identity) Bundles() []*certloader.Bundle {
	return id.bundles
}

// SessionCache returns the identity's session cache, nil when resumption
// caching is not configured.
func (id *Identity) SessionCache() *session.Cache {
	return id.cache
}

// registrationNames returns the raw names the identity must be registered
// under: the CN first, then each SAN. Duplicates between CN and SANs are
// left in; the index insert is idempotent for same-identity repeats.
func (id *Identity) registrationNames() []string {
	names := make([]string, 0, 1+len(id.SubjectAltNames))
	if id.CommonName != "" {
		names = append(names, id.CommonName)
	}
	names = append(names, id.SubjectAltNames...)
	return names
}

// attachedConfigs returns every tls.Config owned by the identity, for ticket
// key application.
func (id *Identity) attachedConfigs() []*tls.Config {
	configs := []*tls.Config{id.config}
	if id.legacyConfig != nil {
		configs = append(configs, id.legacyConfig)
	}
	return configs
}
