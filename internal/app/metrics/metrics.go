package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reward_ledger"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	commissionCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commission",
			Name:      "credits_total",
			Help:      "Commission records written by type.",
		},
		[]string{"type"},
	)

	commissionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commission",
			Name:      "propagation_failures_total",
			Help:      "Commission propagations that stopped early, by reason.",
		},
		[]string{"reason"},
	)

	partialFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "partial_failures_total",
			Help:      "Payments that succeeded but could not be recorded.",
		},
		[]string{"operation"},
	)

	reconcileReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "replays_total",
			Help:      "Journaled payment replays by outcome.",
		},
		[]string{"outcome"},
	)

	rewardJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled reward job runs.",
		},
		[]string{"job", "success"},
	)

	rewardJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled reward jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOperations,
		ledgerDuration,
		commissionCredits,
		commissionFailures,
		partialFailures,
		reconcileReplays,
		rewardJobs,
		rewardJobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := CanonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOperation records one ledger operation. outcome is "ok" or an error
// class such as "validation" or "conflict".
func RecordOperation(operation, outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
	ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCommission counts a written commission record.
func RecordCommission(kind string) {
	commissionCredits.WithLabelValues(kind).Inc()
}

// RecordCommissionFailure counts a propagation that stopped on reason.
func RecordCommissionFailure(reason string) {
	commissionFailures.WithLabelValues(reason).Inc()
}

// RecordPartialFailure counts a payment left unrecorded.
func RecordPartialFailure(operation string) {
	partialFailures.WithLabelValues(operation).Inc()
}

// RecordReplay counts a reconciliation replay outcome.
func RecordReplay(outcome string) {
	reconcileReplays.WithLabelValues(outcome).Inc()
}

// RecordRewardJob records metrics for scheduled reward jobs.
func RecordRewardJob(job string, duration time.Duration, success bool) {
	if job == "" {
		job = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	rewardJobs.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	rewardJobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// CanonicalPath collapses wallet addresses and record ids so label
// cardinality stays bounded.
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "wallets", "positions", "reconciliation", "profiles":
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
