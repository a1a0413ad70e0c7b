package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(feedRankDuration)
}

var feedRankDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "feed_rank_duration_ms",
		Help:    "Time spent scoring and sorting a feed, in milliseconds.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	},
	[]string{"sort_by"},
)

func ObserveFeedRank(sortBy string, ms float64) {
	feedRankDuration.WithLabelValues(sortBy).Observe(ms)
}
