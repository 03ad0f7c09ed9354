package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleet_console"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method and status code.",
	}, []string{"method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Calls made to the backend API, by operation and result.",
	}, []string{"operation", "result"})

	backendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Backend API call latency by operation.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deployment_submissions_total",
		Help:      "Deployment submissions by outcome state.",
	}, []string{"outcome"})

	pollFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_fetches_total",
		Help:      "Status fetches issued by watchers, by watched kind and result.",
	}, []string{"kind", "result"})

	activeWatchers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_watchers",
		Help:      "Status watchers currently running.",
	}, []string{"kind"})

	fleetFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fleet_summary_fetch_failures_total",
		Help:      "Per use case device fetches that failed during fleet aggregation.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTPRequest(method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func ObserveBackendCall(operation string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	backendRequests.WithLabelValues(operation, result).Inc()
	backendDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func RecordSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func RecordPollFetch(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	pollFetches.WithLabelValues(kind, result).Inc()
}

// WatcherStarted increments the running watcher gauge and returns the
// matching decrement.
func WatcherStarted(kind string) func() {
	g := activeWatchers.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

func RecordFleetFetchFailure() {
	fleetFetchFailures.Inc()
}
