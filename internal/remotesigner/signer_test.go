package remotesigner

import (
	"crypto"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Address: "https://vault:8200", KeyName: "www"}},
		{name: "missing address", cfg: Config{KeyName: "www"}, wantErr: true},
		{name: "missing key name", cfg: Config{Address: "https://vault:8200"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Address: "https://vault:8200", KeyName: "www"}.withDefaults()
	assert.Equal(t, "transit", cfg.Mount)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	cfg = Config{Address: "a", KeyName: "k", Mount: "signing", Timeout: time.Second}.withDefaults()
	assert.Equal(t, "signing", cfg.Mount)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestConfigUnmarshalYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
address: https://vault:8200
keyName: www-example-com
mount: signing
timeout: 2s
`), &cfg))

	assert.Equal(t, "https://vault:8200", cfg.Address)
	assert.Equal(t, "www-example-com", cfg.KeyName)
	assert.Equal(t, "signing", cfg.Mount)
	assert.Equal(t, 2*time.Second, cfg.Timeout)

	err := yaml.Unmarshal([]byte(`timeout: soon`), &cfg)
	require.Error(t, err)
}

func TestDecodeTransitSignature(t *testing.T) {
	sig := []byte{0x30, 0x45, 0x02, 0x20}
	raw := "vault:v1:" + base64.StdEncoding.EncodeToString(sig)

	decoded, err := decodeTransitSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, sig, decoded)

	_, err = decodeTransitSignature("no-prefix")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = decodeTransitSignature("vault:v1:!!!not-base64!!!")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = decodeTransitSignature("other:v1:AAAA")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestTransitHashAlgorithm(t *testing.T) {
	name, err := transitHashAlgorithm(crypto.SHA256)
	require.NoError(t, err)
	assert.Equal(t, "sha2-256", name)

	name, err = transitHashAlgorithm(crypto.SHA384)
	require.NoError(t, err)
	assert.Equal(t, "sha2-384", name)

	_, err = transitHashAlgorithm(crypto.MD5)
	require.Error(t, err)
}
