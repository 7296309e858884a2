// Package sni implements SNI-based TLS identity routing: a domain index over
// certificate identities with exact and one-level wildcard matching, a crypto
// strength fallback for outdated clients, and atomic reconfiguration of the
// published identity set.
package sni

import (
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/snigate/internal/observability"
	"github.com/vyrodovalexey/snigate/internal/session"
)

// NoMatchFunc is invoked when a lookup finds no identity for a presented
// server name. The hook may stage additional identities through AddOne; the
// lookup retries once against the then-current set.
type NoMatchFunc func(serverName string)

// Manager routes TLS handshakes to server identities by SNI. Lookups are
// lock-free reads of an atomically published ContextSet; reconfiguration
// builds a replacement set off to the side and swaps it in whole.
type Manager struct {
	current atomic.Pointer[ContextSet]

	// writeMu serializes ResetAll, AddOne, Clear and ticket rotation. Readers
	// never take it.
	writeMu sync.Mutex

	builder   *Builder
	policy    ValidationPolicy
	logger    observability.Logger
	metrics   MetricsRecorder
	tickets   *session.TicketKeyManager
	noMatch   NoMatchFunc
	noMatchRL *rate.Limiter
}

// ManagerOption is a functional option for configuring Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithValidationPolicy sets the malformed-name handling policy.
func WithValidationPolicy(policy ValidationPolicy) ManagerOption {
	return func(m *Manager) {
		m.policy = policy
	}
}

// WithNoMatchHook installs the lookup-miss hook. Invocations are rate limited
// so a flood of unroutable names cannot amplify into hook storms.
func WithNoMatchHook(fn NoMatchFunc) ManagerOption {
	return func(m *Manager) {
		m.noMatch = fn
	}
}

// WithBuilder sets the identity builder.
func WithBuilder(builder *Builder) ManagerOption {
	return func(m *Manager) {
		m.builder = builder
	}
}

// NewManager creates a manager with an empty published set.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		policy:    PolicyStrict,
		logger:    observability.NopLogger(),
		metrics:   NewNopMetrics(),
		noMatchRL: rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.builder == nil {
		m.builder = NewBuilder(m.logger)
	}
	m.current.Store(newContextSet())
	return m
}

// Snapshot returns the currently published set.
func (m *Manager) Snapshot() *ContextSet {
	return m.current.Load()
}

// ResetAll replaces the whole published identity set. The batch is built and
// validated off to the side; any failure leaves the live set untouched. When
// seeds is empty the seed triple of the first live identity is carried over,
// so a config reload without seed material does not silently drop resumption.
func (m *Manager) ResetAll(configs []IdentityConfig, seeds session.TicketSeeds) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	opID := uuid.NewString()

	if seeds.IsEmpty() {
		seeds = m.harvestSeeds()
	}

	next := newContextSet()
	for _, cfg := range configs {
		id, err := m.builder.Build(cfg, seeds)
		if err != nil {
			m.metrics.RecordReconfiguration(0, false)
			m.logger.Error("identity batch rejected",
				observability.String("op", opID),
				observability.Error(err),
			)
			return err
		}
		if err := next.addIdentity(id, m.policy, m.logger); err != nil {
			m.metrics.RecordReconfiguration(0, false)
			m.logger.Error("identity batch rejected",
				observability.String("op", opID),
				observability.String("cn", id.CommonName),
				observability.Error(err),
			)
			return err
		}
	}

	if err := m.applyTicketSeeds(next, seeds); err != nil {
		m.metrics.RecordReconfiguration(0, false)
		return err
	}

	m.current.Store(next)
	m.metrics.RecordReconfiguration(next.Len(), true)
	m.logger.Info("identity set published",
		observability.String("op", opID),
		observability.Int("identities", next.Len()),
		observability.Bool("hasDefault", next.Default() != nil),
	)
	return nil
}

// AddOne builds and publishes a single additional identity. The live set is
// copied, extended and swapped in; concurrent lookups see either the old set
// or the new one.
func (m *Manager) AddOne(cfg IdentityConfig) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	seeds := m.harvestSeeds()

	id, err := m.builder.Build(cfg, seeds)
	if err != nil {
		return err
	}

	next := m.current.Load().clone()
	if err := next.addIdentity(id, m.policy, m.logger); err != nil {
		return err
	}

	if m.tickets != nil && !id.SessionTicketsDisabled {
		for _, cfg := range id.attachedConfigs() {
			m.tickets.Attach(cfg)
		}
	}

	m.current.Store(next)
	m.metrics.RecordReconfiguration(next.Len(), true)
	m.logger.Info("identity added",
		observability.String("id", id.ID),
		observability.String("cn", id.CommonName),
	)
	return nil
}

// Clear unpublishes every identity.
func (m *Manager) Clear() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.current.Store(newContextSet())
	m.tickets = nil
	m.metrics.RecordReconfiguration(0, true)
	m.logger.Info("identity set cleared")
}

// harvestSeeds returns the seed triple of the first live identity that
// carries one, or an empty triple when no identity does.
func (m *Manager) harvestSeeds() session.TicketSeeds {
	for _, id := range m.current.Load().Identities() {
		if !id.Seeds.IsEmpty() {
			return id.Seeds
		}
	}
	return session.TicketSeeds{}
}

// applyTicketSeeds creates the ticket key manager for a new set and attaches
// every ticket-enabled identity config.
func (m *Manager) applyTicketSeeds(next *ContextSet, seeds session.TicketSeeds) error {
	if seeds.IsEmpty() {
		m.tickets = nil
		return nil
	}

	tickets, err := session.NewTicketKeyManager(seeds, m.logger)
	if err != nil {
		return NewConfigurationErrorWithCause("ticketSeeds", "deriving ticket keys", err)
	}
	for _, id := range next.Identities() {
		if id.SessionTicketsDisabled {
			continue
		}
		for _, cfg := range id.attachedConfigs() {
			tickets.Attach(cfg)
		}
	}
	m.tickets = tickets
	return nil
}

// RotateTicketKeys replaces the ticket seed triple and re-keys every live
// identity in place. The published set itself does not change; resumption
// state for still-valid seeds survives.
func (m *Manager) RotateTicketKeys(old, current, updated []string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.tickets == nil {
		m.metrics.RecordTicketRotation(false)
		return NewConfigurationError("ticketSeeds", "no ticket keys are configured")
	}

	if err := m.tickets.SetSeeds(old, current, updated); err != nil {
		m.metrics.RecordTicketRotation(false)
		return err
	}

	seeds := session.TicketSeeds{Old: old, Current: current, New: updated}
	for _, id := range m.current.Load().Identities() {
		id.Seeds = seeds
	}

	m.metrics.RecordTicketRotation(true)
	m.logger.Info("ticket keys rotated",
		observability.Int("old", len(old)),
		observability.Int("current", len(current)),
		observability.Int("new", len(updated)),
	)
	return nil
}

// GetDefault returns the default identity of the published set.
func (m *Manager) GetDefault() (*Identity, error) {
	id := m.current.Load().Default()
	if id == nil {
		return nil, ErrNoDefaultIdentity
	}
	return id, nil
}

// Lookup resolves a server name with the given client hints. On a miss the
// no-match hook runs at most once and the lookup retries against the set
// published after the hook returns.
func (m *Manager) Lookup(serverName string, hints ClientHints) (*Identity, error) {
	crypto := hints.RequestedCrypto()

	id, outcome := m.current.Load().Lookup(serverName, crypto)
	if id == nil && m.noMatch != nil && m.noMatchRL.Allow() {
		m.noMatch(serverName)
		id, outcome = m.current.Load().Lookup(serverName, crypto)
	}

	if id == nil {
		m.metrics.RecordMiss(serverName)
		m.logger.Debug("no identity for server name",
			observability.String("serverName", serverName),
			observability.String("crypto", crypto.String()),
		)
		return nil, ErrIdentityNotFound
	}

	m.metrics.RecordLookup(outcome)
	m.metrics.RecordCertCrypto(crypto, id.Crypto)
	return id, nil
}

// resolve picks the identity for a ClientHello: the default when no SNI is
// presented, an index lookup otherwise with the default as the final
// fallback.
func (m *Manager) resolve(hello *tls.ClientHelloInfo) (*Identity, error) {
	hints := HintsFromClientHello(hello)

	if !hints.ServerNameSent {
		m.metrics.RecordAbsentHostname()
		return m.GetDefault()
	}

	id, err := m.Lookup(hello.ServerName, hints)
	if err == nil {
		return id, nil
	}

	if def := m.current.Load().Default(); def != nil {
		m.metrics.RecordLookup(LookupOutcomeDefault)
		return def, nil
	}
	return nil, err
}

// GetConfigForClient is the tls.Config.GetConfigForClient callback: it routes
// the handshake to the matched identity's config.
func (m *Manager) GetConfigForClient(hello *tls.ClientHelloInfo) (*tls.Config, error) {
	id, err := m.resolve(hello)
	if err != nil {
		return nil, err
	}
	return id.ConfigFor(hello), nil
}

// GetCertificate is the tls.Config.GetCertificate callback, for callers that
// plug the manager into an existing tls.Config instead of swapping whole
// configs. It serves the matched identity's first client-compatible
// certificate.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	id, err := m.resolve(hello)
	if err != nil {
		return nil, err
	}

	bundles := id.Bundles()
	for _, bundle := range bundles {
		cert := bundle.Certificate
		if hello.SupportsCertificate(&cert) == nil {
			return &cert, nil
		}
	}
	cert := bundles[0].Certificate
	return &cert, nil
}
