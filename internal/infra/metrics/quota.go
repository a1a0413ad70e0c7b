package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		quotaChecksTotal,
		quotaConsumesTotal,
		quotaDowngradesTotal,
	)
}

var (
	quotaChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_checks_total",
			Help: "Eligibility checks by tier and outcome.",
		},
		[]string{"tier", "outcome"}, // outcome: 'ok', 'exhausted'
	)

	quotaConsumesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_consumes_total",
			Help: "Quota consumption attempts by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	quotaDowngradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_downgrades_total",
			Help: "Paid subscriptions expired by quota exhaustion.",
		},
	)
)

func IncQuotaCheck(tier, outcome string) {
	quotaChecksTotal.WithLabelValues(tier, outcome).Inc()
}

func IncQuotaConsume(tier, outcome string) {
	quotaConsumesTotal.WithLabelValues(tier, outcome).Inc()
}

func IncQuotaDowngrade() {
	quotaDowngradesTotal.Inc()
}
