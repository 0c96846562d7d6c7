// Package metrics exposes Prometheus metrics for collection runs.
//
// A run can publish them two ways: a textfile for the node_exporter textfile
// collector written when the run ends, and an optional HTTP endpoint that lives
// for the duration of the process. All methods are safe on a nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "draftgap"

// Metrics holds every collector metric on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests     *prometheus.CounterVec
	apiRetries      *prometheus.CounterVec
	rateLimitWaits  *prometheus.CounterVec
	rateLimitSleep  prometheus.Counter
	requestDuration prometheus.Histogram

	players     prometheus.Gauge
	matches     *prometheus.CounterVec
	matchupRows prometheus.Counter
	lastRunUnix prometheus.Gauge
	runDuration prometheus.Gauge
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "riot",
			Name:      "requests_total",
			Help:      "Riot API requests that reached the network, by status code.",
		}, []string{"status"}),
		apiRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "riot",
			Name:      "retries_total",
			Help:      "Riot API retries, by reason.",
		}, []string{"reason"}),
		rateLimitWaits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "riot",
			Name:      "rate_limit_waits_total",
			Help:      "Times the client slept to stay under quota, by window.",
		}, []string{"window"}),
		rateLimitSleep: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "riot",
			Name:      "rate_limit_sleep_seconds_total",
			Help:      "Total seconds spent sleeping for quota or Retry-After.",
		}),
		requestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "riot",
			Name:      "request_duration_seconds",
			Help:      "Latency of Riot API round trips.",
			Buckets:   prometheus.DefBuckets,
		}),
		players: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "players",
			Help:      "Players enumerated in the current run.",
		}),
		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "matches_total",
			Help:      "Matches seen by the collector, by outcome.",
		}, []string{"outcome"}),
		matchupRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "matchup_rows_total",
			Help:      "Directed matchup observations written to the store.",
		}),
		lastRunUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
}

// Match outcomes.
const (
	OutcomeProcessed  = "processed"
	OutcomeDuplicate  = "duplicate"
	OutcomeOtherQueue = "other_queue"
	OutcomeFailed     = "failed"
	OutcomeNotFound   = "not_found"
)

// ObserveRequest records one network round trip.
func (m *Metrics) ObserveRequest(status int, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(d.Seconds())
}

// ObserveRetry records a retry and its reason (rate_limited, status, network).
func (m *Metrics) ObserveRetry(reason string) {
	if m == nil {
		return
	}
	m.apiRetries.WithLabelValues(reason).Inc()
}

// ObserveWait records a quota sleep for the named window.
func (m *Metrics) ObserveWait(window string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWaits.WithLabelValues(window).Inc()
	m.rateLimitSleep.Add(d.Seconds())
}

// RunStarted clears the per-run gauges. Counters keep accumulating across runs.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.players.Set(0)
}

// SetPlayers sets the enumerated player gauge.
func (m *Metrics) SetPlayers(n int) {
	if m == nil {
		return
	}
	m.players.Set(float64(n))
}

// IncMatch counts one match with the given outcome.
func (m *Metrics) IncMatch(outcome string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(outcome).Inc()
}

// AddMatchupRows counts written observations.
func (m *Metrics) AddMatchupRows(n int) {
	if m == nil {
		return
	}
	m.matchupRows.Add(float64(n))
}

// RunFinished stamps the end of a run.
func (m *Metrics) RunFinished(at time.Time, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lastRunUnix.Set(float64(at.Unix()))
	m.runDuration.Set(elapsed.Seconds())
}

// Gatherer exposes the registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the registry in text format for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
