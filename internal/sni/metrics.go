package sni

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder records identity-routing metrics. Implementations must be
// safe for concurrent use; lookups run on every handshake.
type MetricsRecorder interface {
	// RecordLookup records one index lookup and its outcome.
	RecordLookup(outcome string)

	// RecordMiss records a lookup that found no identity.
	RecordMiss(serverName string)

	// RecordAbsentHostname records a handshake that carried no SNI extension.
	RecordAbsentHostname()

	// RecordCertCrypto records the crypto tier a client was served.
	RecordCertCrypto(requested, served CertCrypto)

	// RecordReconfiguration records an identity-set rebuild and its result.
	RecordReconfiguration(identities int, success bool)

	// RecordTicketRotation records one ticket-key rotation.
	RecordTicketRotation(success bool)
}

// Lookup outcome labels.
const (
	LookupOutcomeExact    = "exact"
	LookupOutcomeWildcard = "wildcard"
	LookupOutcomeDefault  = "default"
	LookupOutcomeMiss     = "miss"
)

// Metrics is the Prometheus implementation of MetricsRecorder.
type Metrics struct {
	lookupsTotal          *prometheus.CounterVec
	absentHostnamesTotal  prometheus.Counter
	certCryptoTotal       *prometheus.CounterVec
	reconfigurationsTotal *prometheus.CounterVec
	identitiesPublished   prometheus.Gauge
	ticketRotationsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers routing metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snigate_sni_lookups_total",
				Help: "Total number of SNI identity lookups by outcome",
			},
			[]string{"outcome"},
		),
		absentHostnamesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snigate_sni_absent_hostnames_total",
				Help: "Total number of handshakes without an SNI extension",
			},
		),
		certCryptoTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snigate_sni_cert_crypto_total",
				Help: "Total number of served identities by requested and served crypto tier",
			},
			[]string{"requested", "served"},
		),
		reconfigurationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snigate_sni_reconfigurations_total",
				Help: "Total number of identity-set rebuilds by result",
			},
			[]string{"result"},
		),
		identitiesPublished: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snigate_sni_identities_published",
				Help: "Number of identities in the currently published set",
			},
		),
		ticketRotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snigate_sni_ticket_rotations_total",
				Help: "Total number of session ticket key rotations by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.lookupsTotal,
		m.absentHostnamesTotal,
		m.certCryptoTotal,
		m.reconfigurationsTotal,
		m.identitiesPublished,
		m.ticketRotationsTotal,
	)

	return m
}

// RecordLookup records one index lookup and its outcome.
func (m *Metrics) RecordLookup(outcome string) {
	m.lookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordMiss records a lookup that found no identity.
func (m *Metrics) RecordMiss(_ string) {
	m.lookupsTotal.WithLabelValues(LookupOutcomeMiss).Inc()
}

// RecordAbsentHostname records a handshake that carried no SNI extension.
func (m *Metrics) RecordAbsentHostname() {
	m.absentHostnamesTotal.Inc()
}

// RecordCertCrypto records the crypto tier a client was served.
func (m *Metrics) RecordCertCrypto(requested, served CertCrypto) {
	m.certCryptoTotal.WithLabelValues(requested.String(), served.String()).Inc()
}

// RecordReconfiguration records an identity-set rebuild and its result.
func (m *Metrics) RecordReconfiguration(identities int, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.reconfigurationsTotal.WithLabelValues(result).Inc()
	if success {
		m.identitiesPublished.Set(float64(identities))
	}
}

// RecordTicketRotation records one ticket-key rotation.
func (m *Metrics) RecordTicketRotation(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ticketRotationsTotal.WithLabelValues(result).Inc()
}

// NopMetrics is a MetricsRecorder that does nothing, for tests and callers
// that do not report metrics.
type NopMetrics struct{}

// NewNopMetrics creates a no-op metrics recorder.
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// RecordLookup does nothing.
func (*NopMetrics) RecordLookup(string) {}

// RecordMiss does nothing.
func (*NopMetrics) RecordMiss(string) {}

// RecordAbsentHostname does nothing.
func (*NopMetrics) RecordAbsentHostname() {}

// RecordCertCrypto does nothing.
func (*NopMetrics) RecordCertCrypto(CertCrypto, CertCrypto) {}

// RecordReconfiguration does nothing.
func (*NopMetrics) RecordReconfiguration(int, bool) {}

// RecordTicketRotation does nothing.
func (*NopMetrics) RecordTicketRotation(bool) {}

// Interface compliance checks.
var (
	_ MetricsRecorder = (*Metrics)(nil)
	_ MetricsRecorder = (*NopMetrics)(nil)
)
