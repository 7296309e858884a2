package sni

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/snigate/internal/certloader"
	"github.com/vyrodovalexey/snigate/internal/observability"
	"github.com/vyrodovalexey/snigate/internal/remotesigner"
	"github.com/vyrodovalexey/snigate/internal/session"
)

// Builder turns identity specifications into built identities: it loads the
// certificate bundle, verifies the bundle is internally consistent, and
// assembles the tls.Config the identity will serve.
type Builder struct {
	logger     observability.Logger
	cacheOpts  session.CacheOptions
	external   session.ExternalCache
	verifyPeer func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*Builder)

// WithSessionCacheOptions sets the per-identity session cache sizing.
func WithSessionCacheOptions(opts session.CacheOptions) BuilderOption {
	return func(b *Builder) {
		b.cacheOpts = opts
	}
}

// WithExternalSessionCache sets the shared external session cache tier.
func WithExternalSessionCache(external session.ExternalCache) BuilderOption {
	return func(b *Builder) {
		b.external = external
	}
}

// WithClientVerifier installs an external client certificate verification
// callback on every built config that enables client auth. It runs in
// addition to chain verification against the configured client CA bundle.
func WithClientVerifier(fn func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error) BuilderOption {
	return func(b *Builder) {
		b.verifyPeer = fn
	}
}

// NewBuilder creates an identity builder.
func NewBuilder(logger observability.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Builder{logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build loads and assembles one identity from its specification. seeds is the
// ticket seed triple the identity is configured with; the built identity
// records it for later harvesting.
func (b *Builder) Build(cfg IdentityConfig, seeds session.TicketSeeds) (*Identity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bundles, err := b.loadBundles(cfg)
	if err != nil {
		return nil, err
	}

	if err := checkBundleConsistency(bundles); err != nil {
		return nil, err
	}

	id := &Identity{
		ID:                     uuid.NewString(),
		CommonName:             bundles[0].CommonName,
		SubjectAltNames:        bundles[0].SubjectAltNames,
		Crypto:                 bundleCrypto(bundles),
		Default:                cfg.Default,
		SessionTicketsDisabled: cfg.SessionTicketsDisabled,
		Seeds:                  seeds,
		bundles:                bundles,
	}

	id.config, err = b.assembleConfig(cfg, bundles, cfg.CipherSuites, false)
	if err != nil {
		return nil, err
	}

	if len(cfg.LegacyCipherSuites) > 0 {
		id.legacyConfig, err = b.assembleConfig(cfg, bundles, cfg.LegacyCipherSuites, true)
		if err != nil {
			return nil, err
		}
	}

	id.cache = session.NewCache(id.CommonName, b.cacheOpts, b.external, b.logger)

	b.logger.Debug("identity built",
		observability.String("id", id.ID),
		observability.String("cn", id.CommonName),
		observability.Strings("sans", id.SubjectAltNames),
		observability.String("crypto", id.Crypto.String()),
		observability.Bool("default", id.Default),
	)

	return id, nil
}

// loadBundles loads each certificate entry, installing a remote signer in
// place of a local key when one is configured.
func (b *Builder) loadBundles(cfg IdentityConfig) ([]*certloader.Bundle, error) {
	bundles := make([]*certloader.Bundle, 0, len(cfg.Certificates))
	for _, entry := range cfg.Certificates {
		var bundle *certloader.Bundle
		var err error

		if cfg.RemoteSigner != nil {
			bundle, err = certloader.LoadCertificateOnly(entry.CertFile)
			if err != nil {
				return nil, NewCertificateErrorWithCause(entry.CertFile, "loading certificate", err)
			}
			signer, serr := remotesigner.New(*cfg.RemoteSigner, bundle.Leaf.PublicKey,
				remotesigner.WithLogger(b.logger))
			if serr != nil {
				return nil, NewCertificateErrorWithCause(entry.CertFile, "configuring remote signer", serr)
			}
			bundle.Certificate.PrivateKey = signer
		} else {
			bundle, err = certloader.Load(entry.CertFile, entry.KeyFile, entry.PasswordFile)
			if err != nil {
				return nil, NewCertificateErrorWithCause(entry.CertFile, "loading certificate", err)
			}
		}

		if bundle.CommonName == "" {
			return nil, NewCertificateError(entry.CertFile, "certificate has no Common Name")
		}
		bundles = append(bundles, bundle)
	}
	return bundles, nil
}

// checkBundleConsistency verifies every certificate in the bundle carries the
// same CN and the same SAN set. An identity registers one name set; a bundle
// that disagrees with itself would silently serve some names with only part
// of its certificates.
func checkBundleConsistency(bundles []*certloader.Bundle) error {
	first := bundles[0]
	for _, bundle := range bundles[1:] {
		if bundle.CommonName != first.CommonName {
			return NewCertificateError(bundle.Path,
				"bundle CN mismatch: "+first.CommonName+" ("+first.Path+") vs "+bundle.CommonName)
		}
		if !sameNames(first.SubjectAltNames, bundle.SubjectAltNames) {
			return NewCertificateError(bundle.Path,
				"bundle SAN mismatch with "+first.Path+" for CN "+first.CommonName)
		}
	}
	return nil
}

// sameNames compares two sorted name lists.
func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// bundleCrypto returns the tier of the weakest leaf in the bundle. One legacy
// certificate makes the whole identity a legacy registration.
func bundleCrypto(bundles []*certloader.Bundle) CertCrypto {
	for _, bundle := range bundles {
		if CertCryptoOf(bundle.Leaf) == CryptoLegacySHA1 {
			return CryptoLegacySHA1
		}
	}
	return CryptoBestAvailable
}

// assembleConfig builds one tls.Config from the identity specification.
func (b *Builder) assembleConfig(cfg IdentityConfig, bundles []*certloader.Bundle, cipherNames []string, legacyBand bool) (*tls.Config, error) {
	suites, err := ParseCipherSuites(cipherNames)
	if err != nil {
		return nil, err
	}
	curves, err := ParseCurvePreferences(cfg.CurvePreferences)
	if err != nil {
		return nil, err
	}

	certs := make([]tls.Certificate, 0, len(bundles))
	for _, bundle := range bundles {
		certs = append(certs, bundle.Certificate)
	}

	tlsCfg := &tls.Config{
		Certificates:           certs,
		CipherSuites:           suites,
		CurvePreferences:       curves,
		NextProtos:             append([]string(nil), cfg.ALPN...),
		MinVersion:             cfg.MinVersion.ToTLSVersion(),
		MaxVersion:             cfg.MaxVersion.ToTLSVersion(),
		SessionTicketsDisabled: cfg.SessionTicketsDisabled,
	}

	if tlsCfg.MinVersion == 0 {
		tlsCfg.MinVersion = tls.VersionTLS12
	}
	if legacyBand {
		// The legacy band exists for pre-TLS1.2 clients; cap it below the
		// primary band's floor.
		tlsCfg.MinVersion = tls.VersionTLS10
		tlsCfg.MaxVersion = tls.VersionTLS11
	}

	if cfg.ClientAuth != "" && cfg.ClientAuth != ClientAuthNone {
		pool, err := certloader.LoadClientCAs(cfg.ClientCAFile)
		if err != nil {
			return nil, NewCertificateErrorWithCause(cfg.ClientCAFile, "loading client CA bundle", err)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = cfg.ClientAuth.ToClientAuthType()
		if b.verifyPeer != nil {
			tlsCfg.VerifyPeerCertificate = b.verifyPeer
		}
	}

	return tlsCfg, nil
}
