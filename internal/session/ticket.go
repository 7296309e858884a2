// Package session provides the session-resumption collaborators for the SNI
// routing core: a namespaced session cache with an optional shared Redis tier
// and a rotatable TLS ticket-key manager.
package session

import (
	"crypto/sha256"
	"crypto/tls"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/vyrodovalexey/snigate/internal/observability"
)

// ticketKeyInfo is the HKDF info label for ticket-key derivation.
const ticketKeyInfo = "snigate session ticket key"

// TicketSeeds holds the old/current/new seed triple that ticket keys are
// derived from. Current seeds encrypt new tickets; old and new seeds are
// still accepted for decryption so rotation does not invalidate sessions.
type TicketSeeds struct {
	Old     []string `yaml:"old,omitempty"`
	Current []string `yaml:"current,omitempty"`
	New     []string `yaml:"new,omitempty"`
}

// IsEmpty reports whether no seeds are configured.
func (s TicketSeeds) IsEmpty() bool {
	return len(s.Old) == 0 && len(s.Current) == 0 && len(s.New) == 0
}

// clone returns a deep copy of the seeds.
func (s TicketSeeds) clone() TicketSeeds {
	return TicketSeeds{
		Old:     append([]string(nil), s.Old...),
		Current: append([]string(nil), s.Current...),
		New:     append([]string(nil), s.New...),
	}
}

// TicketKeyManager derives TLS session ticket keys from seed strings and
// pushes them into every attached tls.Config. Rotation may happen while the
// attached configs are serving live handshakes; the manager's lock plus
// tls.Config's own SetSessionTicketKeys synchronization guarantee a reader
// sees either the old or the new key set, never a torn mix.
type TicketKeyManager struct {
	mu      sync.RWMutex
	seeds   TicketSeeds
	keys    [][32]byte
	configs []*tls.Config
	logger  observability.Logger
}

// NewTicketKeyManager creates a manager from the given seed triple.
func NewTicketKeyManager(seeds TicketSeeds, logger observability.Logger) (*TicketKeyManager, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	keys, err := deriveTicketKeys(seeds)
	if err != nil {
		return nil, err
	}

	return &TicketKeyManager{
		seeds:  seeds.clone(),
		keys:   keys,
		logger: logger,
	}, nil
}

// Attach applies the current key set to cfg and registers it for future
// rotations.
func (m *TicketKeyManager) Attach(cfg *tls.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) > 0 {
		cfg.SetSessionTicketKeys(m.keys)
	}
	m.configs = append(m.configs, cfg)
}

// SetSeeds replaces the seed triple and pushes the re-derived keys into every
// attached tls.Config in place.
func (m *TicketKeyManager) SetSeeds(old, current, updated []string) error {
	seeds := TicketSeeds{Old: old, Current: current, New: updated}

	keys, err := deriveTicketKeys(seeds)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seeds = seeds.clone()
	m.keys = keys
	for _, cfg := range m.configs {
		cfg.SetSessionTicketKeys(keys)
	}

	m.logger.Debug("ticket keys rotated",
		observability.Int("keys", len(keys)),
		observability.Int("configs", len(m.configs)),
	)
	return nil
}

// Seeds returns a copy of the current seed triple.
func (m *TicketKeyManager) Seeds() TicketSeeds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seeds.clone()
}

// Keys returns a copy of the derived key set, current keys first.
func (m *TicketKeyManager) Keys() [][32]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][32]byte(nil), m.keys...)
}

// deriveTicketKeys expands each seed into a 32-byte ticket key. Current seeds
// come first so the newest key encrypts fresh tickets, while new and old
// seeds remain accepted for decryption.
func deriveTicketKeys(seeds TicketSeeds) ([][32]byte, error) {
	ordered := make([]string, 0, len(seeds.Current)+len(seeds.New)+len(seeds.Old))
	ordered = append(ordered, seeds.Current...)
	ordered = append(ordered, seeds.New...)
	ordered = append(ordered, seeds.Old...)

	keys := make([][32]byte, 0, len(ordered))
	for _, seed := range ordered {
		key, err := deriveTicketKey(seed)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// deriveTicketKey derives one ticket key from a seed string via HKDF-SHA256.
func deriveTicketKey(seed string) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, []byte(seed), nil, []byte(ticketKeyInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, err
	}
	return key, nil
}
