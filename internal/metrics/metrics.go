package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recap_jobs_created_total",
		Help: "Total jobs created",
	})
	JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recap_jobs_completed_total",
		Help: "Total jobs processed to done",
	})
	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_jobs_failed_total",
		Help: "Total jobs parked in an error state",
	}, []string{"phase"})
	PagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recap_timeline_pages_fetched_total",
		Help: "Total timeline pages fetched",
	})
	EventsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recap_events_stored_total",
		Help: "Total timeline events flushed to storage",
	})
	FetchRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recap_fetch_retries_total",
		Help: "Total timeline page retry attempts",
	})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recap_job_phase_duration_seconds",
		Help:    "Job phase duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
	RollupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recap_rollup_duration_seconds",
		Help:    "Rollup generation duration seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(JobsCreated, JobsCompleted, JobsFailed, PagesFetched, EventsStored, FetchRetries, JobDuration, RollupDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090"). An
// empty addr disables the endpoint.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveJobPhase records one job phase duration.
func ObserveJobPhase(phase string, start time.Time) {
	JobDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
