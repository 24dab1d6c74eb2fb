package o11y

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClaimMetrics instruments the claim pipeline. All methods are nil-safe
// so callers can run without a registry wired.
type ClaimMetrics struct {
	runs            prometheus.Counter
	groups          *prometheus.CounterVec
	credentials     *prometheus.CounterVec
	patches         prometheus.Counter
	issuanceLatency prometheus.Histogram
}

func NewClaimMetrics(reg prometheus.Registerer) *ClaimMetrics {
	factory := promauto.With(reg)
	return &ClaimMetrics{
		runs: factory.NewCounter(prometheus.CounterOpts{
			Name: "passport_claim_runs_total",
			Help: "Claim runs started.",
		}),
		groups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_claim_groups_total",
			Help: "Platform groups by outcome.",
		}, []string{"outcome"}),
		credentials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_claim_credentials_total",
			Help: "Credentials returned by the issuance service.",
		}, []string{"result"}),
		patches: factory.NewCounter(prometheus.CounterOpts{
			Name: "passport_claim_stamp_patches_total",
			Help: "Stamp patches committed to the credential store.",
		}),
		issuanceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "passport_claim_issuance_duration_seconds",
			Help:    "Latency of issuance service verification calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *ClaimMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.runs.Inc()
}

func (m *ClaimMetrics) GroupOutcome(outcome string) {
	if m == nil {
		return
	}
	m.groups.WithLabelValues(outcome).Inc()
}

func (m *ClaimMetrics) Credentials(valid, errored int) {
	if m == nil {
		return
	}
	m.credentials.WithLabelValues("valid").Add(float64(valid))
	m.credentials.WithLabelValues("errored").Add(float64(errored))
}

func (m *ClaimMetrics) PatchesCommitted(n int) {
	if m == nil {
		return
	}
	m.patches.Add(float64(n))
}

func (m *ClaimMetrics) ObserveIssuance(d time.Duration) {
	if m == nil {
		return
	}
	m.issuanceLatency.Observe(d.Seconds())
}
