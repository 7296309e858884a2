package sni

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCipherSuites(t *testing.T) {
	t.Run("empty yields defaults", func(t *testing.T) {
		suites, err := ParseCipherSuites(nil)
		require.NoError(t, err)
		assert.Equal(t, defaultCipherSuites, suites)
	})

	t.Run("names resolve case insensitively", func(t *testing.T) {
		suites, err := ParseCipherSuites([]string{
			"tls_aes_128_gcm_sha256",
			" TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384 ",
		})
		require.NoError(t, err)
		assert.Equal(t, []uint16{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		}, suites)
	})

	t.Run("unknown name fails whole list", func(t *testing.T) {
		_, err := ParseCipherSuites([]string{"TLS_AES_128_GCM_SHA256", "NOT_A_SUITE"})
		require.Error(t, err)
		var cerr *ConfigurationError
		assert.ErrorAs(t, err, &cerr)
	})
}

func TestParseCurvePreferences(t *testing.T) {
	curves, err := ParseCurvePreferences(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultCurvePreferences, curves)

	curves, err = ParseCurvePreferences([]string{"p384", "X25519"})
	require.NoError(t, err)
	assert.Equal(t, []tls.CurveID{tls.CurveP384, tls.X25519}, curves)

	_, err = ParseCurvePreferences([]string{"P999"})
	require.Error(t, err)
}

func TestCipherSuiteName(t *testing.T) {
	assert.Equal(t, "TLS_AES_256_GCM_SHA384", CipherSuiteName(tls.TLS_AES_256_GCM_SHA384))
	assert.Equal(t, "UNKNOWN", CipherSuiteName(0xffff))
}

func TestTLSVersionName(t *testing.T) {
	assert.Equal(t, "TLS1.2", TLSVersionName(tls.VersionTLS12))
	assert.Equal(t, "TLS1.3", TLSVersionName(tls.VersionTLS13))
	assert.Equal(t, "unknown", TLSVersionName(0x0000))
}
