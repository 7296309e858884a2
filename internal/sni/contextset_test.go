package sni

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/snigate/internal/observability"
)

func addForTest(t *testing.T, set *ContextSet, id *Identity) {
	t.Helper()
	require.NoError(t, set.addIdentity(id, PolicyStrict, observability.NopLogger()))
}

func TestContextSetExactAndWildcardLookup(t *testing.T) {
	set := newContextSet()
	exact := makeIdentity("www.example.com", nil, CryptoBestAvailable, false)
	wild := makeIdentity("*.example.com", nil, CryptoBestAvailable, false)
	addForTest(t, set, exact)
	addForTest(t, set, wild)

	id, outcome := set.Lookup("www.example.com", CryptoBestAvailable)
	require.NotNil(t, id)
	assert.Same(t, exact, id)
	assert.Equal(t, LookupOutcomeExact, outcome)

	id, outcome = set.Lookup("api.example.com", CryptoBestAvailable)
	require.NotNil(t, id)
	assert.Same(t, wild, id)
	assert.Equal(t, LookupOutcomeWildcard, outcome)

	// Query names are normalized like registered names.
	id, _ = set.Lookup("WWW.Example.Com.", CryptoBestAvailable)
	assert.Same(t, exact, id)
}

func TestContextSetExactBeatsWildcard(t *testing.T) {
	set := newContextSet()
	wild := makeIdentity("*.example.com", nil, CryptoBestAvailable, false)
	exact := makeIdentity("www.example.com", nil, CryptoBestAvailable, false)
	addForTest(t, set, wild)
	addForTest(t, set, exact)

	id, outcome := set.Lookup("www.example.com", CryptoBestAvailable)
	assert.Same(t, exact, id)
	assert.Equal(t, LookupOutcomeExact, outcome)
}

func TestContextSetWildcardIsOneLevelOnly(t *testing.T) {
	set := newContextSet()
	wild := makeIdentity("*.example.com", nil, CryptoBestAvailable, false)
	addForTest(t, set, wild)

	id, outcome := set.Lookup("a.b.example.com", CryptoBestAvailable)
	assert.Nil(t, id)
	assert.Equal(t, LookupOutcomeMiss, outcome)

	id, _ = set.Lookup("example.com", CryptoBestAvailable)
	assert.Nil(t, id)
}

func TestContextSetSANRegistration(t *testing.T) {
	set := newContextSet()
	id := makeIdentity("www.example.com", []string{"api.example.com", "*.cdn.example.com"}, CryptoBestAvailable, false)
	addForTest(t, set, id)

	got, _ := set.Lookup("api.example.com", CryptoBestAvailable)
	assert.Same(t, id, got)

	got, outcome := set.Lookup("edge1.cdn.example.com", CryptoBestAvailable)
	assert.Same(t, id, got)
	assert.Equal(t, LookupOutcomeWildcard, outcome)
}

func TestContextSetLegacyShadowRegistration(t *testing.T) {
	set := newContextSet()
	legacy := makeIdentity("old.example.com", nil, CryptoLegacySHA1, false)
	addForTest(t, set, legacy)

	// A name covered only by a legacy certificate still answers
	// best-available lookups.
	id, outcome := set.Lookup("old.example.com", CryptoBestAvailable)
	require.NotNil(t, id)
	assert.Same(t, legacy, id)
	assert.Equal(t, LookupOutcomeExact, outcome)

	id, _ = set.Lookup("old.example.com", CryptoLegacySHA1)
	assert.Same(t, legacy, id)
}

func TestContextSetStrongCertificateWinsOverShadow(t *testing.T) {
	tests := []struct {
		name        string
		legacyFirst bool
	}{
		{name: "legacy registered first", legacyFirst: true},
		{name: "strong registered first", legacyFirst: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newContextSet()
			legacy := makeIdentity("www.example.com", nil, CryptoLegacySHA1, false)
			strong := makeIdentity("www.example.com", nil, CryptoBestAvailable, false)

			if tt.legacyFirst {
				addForTest(t, set, legacy)
				addForTest(t, set, strong)
			} else {
				addForTest(t, set, strong)
				addForTest(t, set, legacy)
			}

			id, _ := set.Lookup("www.example.com", CryptoBestAvailable)
			assert.Same(t, strong, id, "best-available tier must serve the strong certificate")

			id, _ = set.Lookup("www.example.com", CryptoLegacySHA1)
			assert.Same(t, legacy, id, "legacy tier must serve the legacy certificate")
		})
	}
}

func TestContextSetLegacyTierFallsBackToBestAvailable(t *testing.T) {
	set := newContextSet()
	strong := makeIdentity("www.example.com", nil, CryptoBestAvailable, false)
	addForTest(t, set, strong)

	// A legacy-only client still gets the strong certificate when no legacy
	// one exists for the name.
	id, outcome := set.Lookup("www.example.com", CryptoLegacySHA1)
	assert.Same(t, strong, id)
	assert.Equal(t, LookupOutcomeExact, outcome)
}

func TestContextSetLegacyWildcardBeatsStrongExact(t *testing.T) {
	set := newContextSet()
	strong := makeIdentity("a.example.com", nil, CryptoBestAvailable, false)
	legacyWild := makeIdentity("*.example.com", nil, CryptoLegacySHA1, false)
	addForTest(t, set, strong)
	addForTest(t, set, legacyWild)

	// A legacy client asking for a name with a legacy wildcard must get that
	// wildcard: the cross-tier retry only runs after both probes miss in the
	// legacy tier.
	id, outcome := set.Lookup("a.example.com", CryptoLegacySHA1)
	require.NotNil(t, id)
	assert.Same(t, legacyWild, id)
	assert.Equal(t, LookupOutcomeWildcard, outcome)

	// Modern clients still get the strong exact certificate.
	id, outcome = set.Lookup("a.example.com", CryptoBestAvailable)
	assert.Same(t, strong, id)
	assert.Equal(t, LookupOutcomeExact, outcome)
}

func TestContextSetDuplicateDefaultRejected(t *testing.T) {
	set := newContextSet()
	addForTest(t, set, makeIdentity("a.example.com", nil, CryptoBestAvailable, true))

	err := set.addIdentity(makeIdentity("b.example.com", nil, CryptoBestAvailable, true),
		PolicyStrict, observability.NopLogger())
	require.Error(t, err)
	var cerr *ConfigurationError
	assert.ErrorAs(t, err, &cerr)

	// Lenient policy does not soften the duplicate-default rule.
	err = set.addIdentity(makeIdentity("c.example.com", nil, CryptoBestAvailable, true),
		PolicyLenient, observability.NopLogger())
	require.Error(t, err)
}

func TestContextSetStarCommonNameRequiresDefault(t *testing.T) {
	set := newContextSet()
	stray := makeIdentity("*", []string{"fallback.example.com"}, CryptoBestAvailable, false)

	err := set.addIdentity(stray, PolicyStrict, observability.NopLogger())
	require.Error(t, err)
	var cerr *ConfigurationError
	assert.ErrorAs(t, err, &cerr)

	assert.Nil(t, set.Default())
	assert.Equal(t, 0, set.Len())
	id, _ := set.Lookup("fallback.example.com", CryptoBestAvailable)
	assert.Nil(t, id, "a rejected catch-all must leave no index entries behind")

	// Lenient policy does not soften the rule either.
	err = set.addIdentity(stray, PolicyLenient, observability.NopLogger())
	require.Error(t, err)
}

func TestContextSetStarCommonNameRegistersNoNames(t *testing.T) {
	set := newContextSet()
	catchAll := makeIdentity("*", []string{"fallback.example.com"}, CryptoBestAvailable, true)
	addForTest(t, set, catchAll)

	assert.Same(t, catchAll, set.Default())

	// The catch-all is reachable only through the default, never through the
	// index: neither the star itself nor its SANs get entries.
	id, outcome := set.Lookup("fallback.example.com", CryptoBestAvailable)
	assert.Nil(t, id)
	assert.Equal(t, LookupOutcomeMiss, outcome)
	id, _ = set.Lookup("anything.example.com", CryptoBestAvailable)
	assert.Nil(t, id)
}

func TestContextSetMalformedNamePolicies(t *testing.T) {
	bad := makeIdentity("www.example.com", []string{"www.*.example.com"}, CryptoBestAvailable, false)

	strict := newContextSet()
	err := strict.addIdentity(bad, PolicyStrict, observability.NopLogger())
	require.Error(t, err)
	assert.Equal(t, 0, strict.Len())

	lenient := newContextSet()
	bad2 := makeIdentity("www.example.com", []string{"www.*.example.com", "ok.example.com"}, CryptoBestAvailable, false)
	require.NoError(t, lenient.addIdentity(bad2, PolicyLenient, observability.NopLogger()))
	assert.Equal(t, 1, lenient.Len())

	id, _ := lenient.Lookup("www.example.com", CryptoBestAvailable)
	assert.Same(t, bad2, id)
	id, _ = lenient.Lookup("ok.example.com", CryptoBestAvailable)
	assert.Same(t, bad2, id)
}

func TestContextSetLaterRegistrationOverwrites(t *testing.T) {
	set := newContextSet()
	first := makeIdentity("www.example.com", nil, CryptoBestAvailable, false)
	second := makeIdentity("www.example.com", nil, CryptoBestAvailable, false)
	addForTest(t, set, first)
	addForTest(t, set, second)

	id, _ := set.Lookup("www.example.com", CryptoBestAvailable)
	assert.Same(t, second, id)
	assert.Equal(t, 2, set.Len())
}

func TestContextSetCloneIsIndependent(t *testing.T) {
	set := newContextSet()
	addForTest(t, set, makeIdentity("www.example.com", nil, CryptoBestAvailable, false))

	cp := set.clone()
	addForTest(t, cp, makeIdentity("api.example.com", nil, CryptoBestAvailable, false))

	id, _ := set.Lookup("api.example.com", CryptoBestAvailable)
	assert.Nil(t, id, "original set must not see additions to the clone")

	id, _ = cp.Lookup("api.example.com", CryptoBestAvailable)
	assert.NotNil(t, id)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 2, cp.Len())
}
