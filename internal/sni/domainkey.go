package sni

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
)

// CertCrypto classifies the signature strength of an identity's leaf
// certificate. Legacy entries exist so that outdated clients without SHA-2
// support can still be served a certificate they can validate.
type CertCrypto int

// Crypto strength tiers.
const (
	// CryptoBestAvailable is the strongest certificate available for a name.
	CryptoBestAvailable CertCrypto = iota

	// CryptoLegacySHA1 marks certificates with a SHA-1 signature, served only
	// to clients that show no evidence of SHA-2 support.
	CryptoLegacySHA1
)

// String returns the string representation of the crypto tier.
func (c CertCrypto) String() string {
	switch c {
	case CryptoBestAvailable:
		return "best_available"
	case CryptoLegacySHA1:
		return "legacy_sha1"
	default:
		return "unknown"
	}
}

// CertCryptoOf derives the crypto tier from a leaf certificate's signature
// algorithm.
func CertCryptoOf(leaf *x509.Certificate) CertCrypto {
	switch leaf.SignatureAlgorithm {
	case x509.SHA1WithRSA, x509.ECDSAWithSHA1:
		return CryptoLegacySHA1
	default:
		return CryptoBestAvailable
	}
}

// DomainKey is the lookup key of the domain index: a normalized domain name
// plus the crypto tier it is registered under. Wildcard names are stored in
// suffix form (leading dot, wildcard stripped); the name never contains '*'.
type DomainKey struct {
	Name   string
	Crypto CertCrypto
}

// String returns a readable form for logging.
func (k DomainKey) String() string {
	return k.Name + "/" + k.Crypto.String()
}

// normalizeDomainName validates and normalizes a raw CN or SAN for index
// registration. A leading "*." is reduced to the ".suffix" form; '*' anywhere
// else is rejected, as is a name that is a single dot after stripping.
func normalizeDomainName(raw string) (string, error) {
	dn := strings.ToLower(strings.TrimSuffix(raw, "."))
	if dn == "" {
		return "", NewValidationError(raw, "empty domain name")
	}

	if len(dn) > 2 && dn[0] == '*' {
		if dn[1] != '.' {
			return "", NewValidationError(raw, `only "." may follow a leading "*"`)
		}
		// Keep the leading dot: ".example.com" is the suffix form matched by
		// the one-level wildcard probe.
		dn = dn[1:]
	}

	if dn == "." {
		return "", NewValidationError(raw, `name is a single "." after removing the wildcard`)
	}
	if strings.ContainsRune(dn, '*') {
		return "", NewValidationError(raw, `"*" appears after the leading label`)
	}

	return dn, nil
}

// ClientHints captures the capability signals a ClientHello carries that are
// relevant to crypto-tier selection.
type ClientHints struct {
	// ServerNameSent reports whether the client included the SNI extension.
	// SNI support implies a modern enough TLS stack to validate SHA-2.
	ServerNameSent bool

	// SignatureSchemes is the client's declared signature algorithm list.
	SignatureSchemes []tls.SignatureScheme
}

// HintsFromClientHello extracts capability hints from a ClientHello.
func HintsFromClientHello(hello *tls.ClientHelloInfo) ClientHints {
	if hello == nil {
		return ClientHints{}
	}
	return ClientHints{
		ServerNameSent:   hello.ServerName != "",
		SignatureSchemes: hello.SignatureSchemes,
	}
}

// strongSignatureSchemes are signature schemes using SHA-256 or better.
var strongSignatureSchemes = map[tls.SignatureScheme]bool{
	tls.PKCS1WithSHA256:        true,
	tls.PKCS1WithSHA384:        true,
	tls.PKCS1WithSHA512:        true,
	tls.PSSWithSHA256:          true,
	tls.PSSWithSHA384:          true,
	tls.PSSWithSHA512:          true,
	tls.ECDSAWithP256AndSHA256: true,
	tls.ECDSAWithP384AndSHA384: true,
	tls.ECDSAWithP521AndSHA512: true,
	tls.Ed25519:                true,
}

// RequestedCrypto resolves the crypto tier to look up first. The requirement
// is downgraded to the legacy tier only when the client shows no evidence of
// strong-hash support: no strong signature scheme and no SNI extension.
func (h ClientHints) RequestedCrypto() CertCrypto {
	for _, scheme := range h.SignatureSchemes {
		if strongSignatureSchemes[scheme] {
			return CryptoBestAvailable
		}
	}
	if h.ServerNameSent {
		return CryptoBestAvailable
	}
	return CryptoLegacySHA1
}
