// Package metrics exposes Prometheus collectors for harvesting runs.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the status label.
const (
	StatusOK          = "ok"
	StatusFetchFailed = "fetch_failed"
	StatusPartial     = "partial"
)

var (
	runsTotal       *prometheus.CounterVec
	stageItemsTotal *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsInFlight    *prometheus.GaugeVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total crawl-and-analyze executions, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		stageItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_stage_items_total",
				Help: "Articles leaving each pipeline stage, labeled by source and stage.",
			},
			[]string{"source", "stage"},
		)

		runDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Duration of crawl-and-analyze executions.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"source"},
		)

		runsInFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_runs_in_flight",
				Help: "Executions currently running, labeled by source.",
			},
			[]string{"source"},
		)
	})
}

// ObserveRun records one finished execution.
func ObserveRun(source, status string, took time.Duration) {
	Init()
	runsTotal.WithLabelValues(source, status).Inc()
	runDuration.WithLabelValues(source).Observe(took.Seconds())
}

// ObserveStage records how many articles left a stage.
func ObserveStage(source, stage string, count int) {
	Init()
	stageItemsTotal.WithLabelValues(source, stage).Add(float64(count))
}

// TrackInFlight increments the in-flight gauge and returns the decrement.
func TrackInFlight(source string) func() {
	Init()
	g := runsInFlight.WithLabelValues(source)
	g.Inc()
	return g.Dec
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewRouter serves /metrics and a liveness probe.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
