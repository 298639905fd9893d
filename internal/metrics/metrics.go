package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	scheduleGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Name:      "schedule_generated_total",
			Help:      "Count of schedule requests by outcome.",
		},
		[]string{"result"},
	)

	generateSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dayplan",
			Name:      "schedule_generate_seconds",
			Help:      "Time spent generating a day schedule.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	icsFetch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Name:      "ics_fetch_total",
			Help:      "Count of ICS fetches by result.",
		},
		[]string{"result"},
	)

	eventsImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Name:      "events_imported_total",
			Help:      "Count of day-keyed events stored per source.",
		},
		[]string{"source"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Name:      "schedule_cache_total",
			Help:      "Count of schedule cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(scheduleGenerated, generateSeconds, icsFetch, eventsImported, cacheLookups)
	})
}

// ObserveGenerate records one generator run.
func ObserveGenerate(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	scheduleGenerated.WithLabelValues(result).Inc()
	generateSeconds.Observe(d.Seconds())
}

func IncFetch(result string) {
	icsFetch.WithLabelValues(result).Inc()
}

func AddImported(source string, n int) {
	eventsImported.WithLabelValues(source).Add(float64(n))
}

func IncCache(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}
