package sni

import (
	"crypto/tls"
	"strings"
)

// cipherSuiteRegistry maps cipher suite names to their IDs. Covers the TLS
// 1.3 suites plus the TLS 1.0-1.2 suites crypto/tls implements.
var cipherSuiteRegistry = map[string]uint16{
	// TLS 1.3
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	// TLS 1.2
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256":       tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384":       tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":         tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":         tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256":       tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256":         tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
	"TLS_RSA_WITH_AES_128_GCM_SHA256":               tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_RSA_WITH_AES_256_GCM_SHA384":               tls.TLS_RSA_WITH_AES_256_GCM_SHA384,

	// Legacy bands (TLS 1.0-1.1 capable)
	"TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA": tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	"TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA": tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA":   tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	"TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA":   tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	"TLS_RSA_WITH_AES_128_CBC_SHA":         tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	"TLS_RSA_WITH_AES_256_CBC_SHA":         tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	"TLS_RSA_WITH_3DES_EDE_CBC_SHA":        tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
}

// defaultCipherSuites is the server-preferred order used when no explicit
// list is configured.
var defaultCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// ParseCipherSuites resolves cipher suite names to IDs. An empty list yields
// the secure defaults; any unknown name is a ConfigurationError, so requested
// lists are validated in full before an identity is built.
func ParseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return append([]uint16(nil), defaultCipherSuites...), nil
	}

	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := cipherSuiteRegistry[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, NewConfigurationError("cipherSuites", "unknown cipher suite: "+name)
		}
		suites = append(suites, id)
	}
	return suites, nil
}

// CipherSuiteName returns the name for a cipher suite ID.
func CipherSuiteName(id uint16) string {
	for name, registered := range cipherSuiteRegistry {
		if registered == id {
			return name
		}
	}
	return "UNKNOWN"
}

// curveRegistry maps named-curve identifiers to crypto/tls curve IDs.
var curveRegistry = map[string]tls.CurveID{
	"X25519": tls.X25519,
	"P256":   tls.CurveP256,
	"P384":   tls.CurveP384,
	"P521":   tls.CurveP521,
}

// defaultCurvePreferences is the curve order used when none is configured.
var defaultCurvePreferences = []tls.CurveID{
	tls.X25519,
	tls.CurveP256,
}

// ParseCurvePreferences resolves named curves to IDs. Unknown curve names are
// a ConfigurationError.
func ParseCurvePreferences(names []string) ([]tls.CurveID, error) {
	if len(names) == 0 {
		return append([]tls.CurveID(nil), defaultCurvePreferences...), nil
	}

	curves := make([]tls.CurveID, 0, len(names))
	for _, name := range names {
		id, ok := curveRegistry[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, NewConfigurationError("curvePreferences", "unknown curve: "+name)
		}
		curves = append(curves, id)
	}
	return curves, nil
}

// TLSVersionName returns the display name of a crypto/tls version constant.
func TLSVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS1.0"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	default:
		return "unknown"
	}
}
