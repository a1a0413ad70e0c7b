package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		featuresAppliedTotal,
		featuresSweptTotal,
	)
}

var (
	featuresAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "features_applied_total",
			Help: "Promotional features applied to listings, by kind.",
		},
		[]string{"kind"},
	)

	featuresSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "features_swept_total",
			Help: "Expired feature flags cleared by the sweep.",
		},
	)
)

func IncFeatureApplied(kind string) {
	featuresAppliedTotal.WithLabelValues(kind).Inc()
}

func AddFeaturesSwept(count int) {
	featuresSweptTotal.Add(float64(count))
}
