package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP (ops server)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalword_http_requests_total",
			Help: "Total number of ops HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finalword_http_request_duration_seconds",
			Help:    "Ops HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Dispatch
	dispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalword_dispatch_runs_total",
			Help: "Dispatch loop invocations by result (ok, error, canceled).",
		},
		[]string{"result"},
	)
	dispatchJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalword_dispatch_jobs_total",
			Help: "Jobs handled by the dispatch loop by outcome.",
		},
		[]string{"outcome"},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finalword_dispatch_run_duration_seconds",
			Help:    "Wall time of one dispatch invocation.",
			Buckets: prometheus.DefBuckets,
		},
	)
	dispatchLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finalword_dispatch_lag_seconds",
			Help:    "Delay between a job's due_at and its completion.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600, 86400},
		},
	)

	// Notifier
	notifierSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalword_notifier_sends_total",
			Help: "Notifier send attempts by result (ok, rejected, error).",
		},
		[]string{"result"},
	)
	notifierRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finalword_notifier_retries_total",
			Help: "Notifier retries after a transient error.",
		},
	)
	notifierDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finalword_notifier_send_duration_seconds",
			Help:    "Time spent in one notifier send including retries.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Controller
	scheduleWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalword_schedule_writes_total",
			Help: "Jobs whose due_at was written, by trigger.",
		},
		[]string{"reason"},
	)
	activityRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalword_activity_rows_total",
			Help: "Activity log rows appended, by type.",
		},
		[]string{"type"},
	)

	// Runtime
	goroutineRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalword_goroutine_restarts_total",
			Help: "Supervised goroutine restarts, by name and cause.",
		},
		[]string{"name", "cause"},
	)

	// Gauges (DB collectors)
	pendingJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "finalword_jobs_pending",
			Help: "Jobs not yet completed, as of the last dispatch run.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			dispatchRuns,
			dispatchJobs,
			dispatchDuration,
			dispatchLag,

			notifierSends,
			notifierRetries,
			notifierDuration,

			scheduleWrites,
			activityRows,

			goroutineRestarts,
			pendingJobs,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Dispatch ---
func ObserveDispatchRun(result string, d time.Duration) {
	dispatchRuns.WithLabelValues(result).Inc()
	dispatchDuration.Observe(d.Seconds())
}
func IncDispatchJob(outcome string) { dispatchJobs.WithLabelValues(outcome).Inc() }
func ObserveDispatchLag(d time.Duration) {
	if d < 0 {
		d = 0
	}
	dispatchLag.Observe(d.Seconds())
}

// --- Notifier ---
func IncNotifierSend(result string)       { notifierSends.WithLabelValues(result).Inc() }
func IncNotifierRetry()                   { notifierRetries.Inc() }
func ObserveNotifierSend(d time.Duration) { notifierDuration.Observe(d.Seconds()) }

// --- Controller ---
func AddScheduleWrites(reason string, n int64) {
	if n > 0 {
		scheduleWrites.WithLabelValues(reason).Add(float64(n))
	}
}
func IncActivity(typ string) { activityRows.WithLabelValues(typ).Inc() }

// --- Runtime ---
func IncGoroutineRestart(name, cause string) { goroutineRestarts.WithLabelValues(name, cause).Inc() }

// --- Gauges ---
func SetPendingJobs(n int64) {
	if n < 0 {
		n = 0
	}
	pendingJobs.Set(float64(n))
}
