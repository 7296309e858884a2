// Package remotesigner provides a crypto.Signer backed by a remote signing
// service, for identities whose private key never enters this process. The
// current implementation signs through the HashiCorp Vault Transit secrets
// engine.
package remotesigner

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/snigate/internal/observability"
)

// Errors returned by the remote signer.
var (
	// ErrSignerUnavailable indicates the signing backend is unreachable or
	// the circuit breaker is open.
	ErrSignerUnavailable = errors.New("remote signer unavailable")

	// ErrBadSignature indicates the backend returned a malformed signature.
	ErrBadSignature = errors.New("malformed signature from remote signer")
)

// Config describes the remote signing service for one identity.
type Config struct {
	// Address is the Vault server URL.
	Address string `yaml:"address"`

	// Token authenticates against Vault. Taken from VAULT_TOKEN when empty.
	Token string `yaml:"token,omitempty"`

	// Mount is the Transit mount path. Defaults to "transit".
	Mount string `yaml:"mount,omitempty"`

	// KeyName is the Transit key holding the identity's private key.
	KeyName string `yaml:"keyName"`

	// Timeout bounds each signing call.
	Timeout time.Duration `yaml:"-"`
}

// UnmarshalYAML implements yaml.Unmarshaler; the timeout is given as a
// duration string.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Address string `yaml:"address"`
		Token   string `yaml:"token,omitempty"`
		Mount   string `yaml:"mount,omitempty"`
		KeyName string `yaml:"keyName"`
		Timeout string `yaml:"timeout,omitempty"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.Address = raw.Address
	c.Token = raw.Token
	c.Mount = raw.Mount
	c.KeyName = raw.KeyName
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("remote signer: invalid timeout %q: %w", raw.Timeout, err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks the descriptor for structural errors.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("remote signer: address is required")
	}
	if c.KeyName == "" {
		return errors.New("remote signer: keyName is required")
	}
	return nil
}

// withDefaults fills unset options.
func (c Config) withDefaults() Config {
	if c.Mount == "" {
		c.Mount = "transit"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Signer implements crypto.Signer against Vault Transit. Signing runs on the
// handshake path, so calls are bounded by a timeout and guarded by a circuit
// breaker that fails fast while the backend is down.
type Signer struct {
	client  *vaultapi.Client
	cfg     Config
	public  crypto.PublicKey
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// Option is a functional option for configuring Signer.
type Option func(*Signer)

// WithLogger sets the logger for the signer.
func WithLogger(logger observability.Logger) Option {
	return func(s *Signer) {
		s.logger = logger
	}
}

// New creates a remote signer for the given public key. The public key comes
// from the identity's certificate; only the signing operation is remote.
func New(cfg Config, public crypto.PublicKey, opts ...Option) (*Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	vaultCfg := vaultapi.DefaultConfig()
	vaultCfg.Address = cfg.Address
	vaultCfg.Timeout = cfg.Timeout

	client, err := vaultapi.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("remote signer: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	s := &Signer{
		client: client,
		cfg:    cfg,
		public: public,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "remote-signer-" + cfg.KeyName,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("remote signer breaker state changed",
				observability.String("breaker", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return s, nil
}

// Public returns the public key paired with the remote private key.
func (s *Signer) Public() crypto.PublicKey {
	return s.public
}

// Sign signs the digest through Vault Transit. The digest has already been
// hashed by crypto/tls; Transit is told so via the prehashed flag.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	hashName, err := transitHashAlgorithm(opts.HashFunc())
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"input":          base64.StdEncoding.EncodeToString(digest),
		"prehashed":      true,
		"hash_algorithm": hashName,
	}
	if _, ok := opts.(*rsa.PSSOptions); ok {
		data["signature_algorithm"] = "pss"
	} else {
		data["signature_algorithm"] = "pkcs1v15"
	}

	path := fmt.Sprintf("%s/sign/%s", s.cfg.Mount, s.cfg.KeyName)

	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		return s.client.Logical().WriteWithContext(ctx, path, data)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrSignerUnavailable, err)
		}
		return nil, fmt.Errorf("remote signer: sign failed: %w", err)
	}

	secret, ok := result.(*vaultapi.Secret)
	if !ok || secret == nil || secret.Data == nil {
		return nil, ErrBadSignature
	}

	raw, ok := secret.Data["signature"].(string)
	if !ok {
		return nil, ErrBadSignature
	}

	return decodeTransitSignature(raw)
}

// transitHashAlgorithm maps a crypto.Hash to the Transit hash algorithm name.
func transitHashAlgorithm(h crypto.Hash) (string, error) {
	switch h {
	case crypto.SHA256:
		return "sha2-256", nil
	case crypto.SHA384:
		return "sha2-384", nil
	case crypto.SHA512:
		return "sha2-512", nil
	default:
		return "", fmt.Errorf("remote signer: unsupported hash %v", h)
	}
}

// decodeTransitSignature strips the "vault:vN:" prefix and decodes the
// base64 signature body.
func decodeTransitSignature(raw string) ([]byte, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] != "vault" {
		return nil, ErrBadSignature
	}
	sig, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return sig, nil
}

// Ensure Signer implements crypto.Signer.
var _ crypto.Signer = (*Signer)(nil)
