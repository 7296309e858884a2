package sni

import (
	"strings"

	"github.com/vyrodovalexey/snigate/internal/observability"
)

// ContextSet is one published generation of the domain index: every built
// identity plus the key map resolving (name, crypto tier) to an identity.
// A set is immutable after publication; reconfiguration builds a fresh set
// and swaps it in atomically.
type ContextSet struct {
	byKey      map[DomainKey]*Identity
	identities []*Identity
	defaultID  *Identity
}

// newContextSet creates an empty set.
func newContextSet() *ContextSet {
	return &ContextSet{
		byKey: make(map[DomainKey]*Identity),
	}
}

// clone returns a mutable copy sharing the immutable identities.
func (s *ContextSet) clone() *ContextSet {
	cp := &ContextSet{
		byKey:      make(map[DomainKey]*Identity, len(s.byKey)),
		identities: append([]*Identity(nil), s.identities...),
		defaultID:  s.defaultID,
	}
	for k, v := range s.byKey {
		cp.byKey[k] = v
	}
	return cp
}

// Identities returns the published identities in registration order.
func (s *ContextSet) Identities() []*Identity {
	return s.identities
}

// Default returns the default identity, nil when none is marked.
func (s *ContextSet) Default() *Identity {
	return s.defaultID
}

// Len returns the number of published identities.
func (s *ContextSet) Len() int {
	return len(s.identities)
}

// addIdentity registers an identity under each of its CN and SAN names. Under
// PolicyStrict the first malformed name fails the whole insert; under
// PolicyLenient malformed names are logged and skipped. A second default
// identity is always an error regardless of policy.
func (s *ContextSet) addIdentity(id *Identity, policy ValidationPolicy, logger observability.Logger) error {
	// A bare star CN is only accepted as the explicit catch-all: it must be
	// marked default and registers no index names at all, SANs included.
	if id.CommonName == "*" && !id.Default {
		return NewConfigurationError("default",
			`identity with CN "*" must be marked as the default`)
	}

	if id.Default {
		if s.defaultID != nil && s.defaultID != id {
			return NewConfigurationError("default",
				"default identity already set to CN "+s.defaultID.CommonName)
		}
		s.defaultID = id
	}

	names := id.registrationNames()
	if id.CommonName == "*" {
		names = nil
	}

	for _, raw := range names {
		if err := s.insertName(raw, id); err != nil {
			if policy == PolicyStrict {
				return err
			}
			logger.Warn("skipping malformed identity name",
				observability.String("name", raw),
				observability.String("cn", id.CommonName),
				observability.Error(err),
			)
		}
	}

	s.identities = append(s.identities, id)
	return nil
}

// insertName normalizes one raw name and registers the identity under it.
func (s *ContextSet) insertName(raw string, id *Identity) error {
	dn, err := normalizeDomainName(raw)
	if err != nil {
		return err
	}

	s.insertKey(DomainKey{Name: dn, Crypto: id.Crypto}, id, true)
	if id.Crypto == CryptoLegacySHA1 {
		// Shadow entry: a legacy certificate also answers best-available
		// lookups for names no stronger certificate covers. A stronger
		// certificate registered before or after wins.
		s.insertKey(DomainKey{Name: dn, Crypto: CryptoBestAvailable}, id, false)
	}
	return nil
}

// insertKey registers the identity under a key. When overwrite is false an
// existing registration is kept.
func (s *ContextSet) insertKey(key DomainKey, id *Identity, overwrite bool) {
	if _, ok := s.byKey[key]; ok && !overwrite {
		return
	}
	s.byKey[key] = id
}

// Lookup resolves a server name against the index: exact match first, then a
// one-level wildcard probe replacing the first label with its suffix, both at
// the requested tier. Only when both probes miss does a legacy request retry
// the full pair at the best-available tier. The returned outcome is one of
// the LookupOutcome constants.
func (s *ContextSet) Lookup(serverName string, crypto CertCrypto) (*Identity, string) {
	dn := strings.ToLower(strings.TrimSuffix(serverName, "."))
	if dn == "" {
		return nil, LookupOutcomeMiss
	}

	if id, outcome := s.probe(dn, crypto); id != nil {
		return id, outcome
	}
	if crypto == CryptoLegacySHA1 {
		if id, outcome := s.probe(dn, CryptoBestAvailable); id != nil {
			return id, outcome
		}
	}

	return nil, LookupOutcomeMiss
}

// probe runs the exact and one-level wildcard lookups at a single tier.
func (s *ContextSet) probe(dn string, crypto CertCrypto) (*Identity, string) {
	if id, ok := s.byKey[DomainKey{Name: dn, Crypto: crypto}]; ok {
		return id, LookupOutcomeExact
	}

	// One level only: "a.b.example.com" probes ".b.example.com", never
	// ".example.com".
	if dot := strings.IndexByte(dn, '.'); dot > 0 && dot < len(dn)-1 {
		if id, ok := s.byKey[DomainKey{Name: dn[dot:], Crypto: crypto}]; ok {
			return id, LookupOutcomeWildcard
		}
	}
	return nil, LookupOutcomeMiss
}
