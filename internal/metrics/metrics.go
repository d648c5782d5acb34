// Package metrics exposes Prometheus collectors for reconciliation runs and
// the HTTP API.
//
// Collectors are registered with the Registerer handed to New so tests and
// embedded clients never touch the global registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/reconcile"
)

const namespace = "blockquote"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeNoOp    = "noop"
	OutcomeFailed  = "failed"
)

// Metrics holds the blockquote collectors.
type Metrics struct {
	// Runs counts reconciliation runs by outcome.
	Runs *prometheus.CounterVec
	// Failures counts failed items of aborted runs by kind.
	Failures *prometheus.CounterVec

	Pulled        prometheus.Counter
	Found         prometheus.Counter
	Squelched     prometheus.Counter
	Upserted      prometheus.Counter
	MarkedDeleted prometheus.Counter

	// Mismatches counts runs where the number of pulled records differed
	// from the number of counterparts found.
	Mismatches   prometheus.Counter
	BackoffTrips prometheus.Counter

	Duration    prometheus.Histogram
	LastSuccess prometheus.Gauge

	// Requests counts HTTP API requests by method and status code.
	Requests *prometheus.CounterVec
}

var _ reconcile.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "item_failures_total",
			Help:      "Failed fetch or upsert operations by failure kind.",
		}, []string{"kind"}),
		Pulled:        counter("records_pulled_total", "Due records pulled from the store."),
		Found:         counter("counterparts_found_total", "Counterparts fetched from the source."),
		Squelched:     counter("lookups_squelched_total", "Lookups answered not found or not authorized."),
		Upserted:      counter("records_upserted_total", "Records written back to the store."),
		MarkedDeleted: counter("records_marked_deleted_total", "Records newly marked deleted."),
		Mismatches:    counter("mismatches_total", "Runs where pulled records and found counterparts differed."),
		BackoffTrips:  counter("backoff_trips_total", "Runs in which a rate limit tripped backoff."),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Wall time of reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by method and status code.",
		}, []string{"method", "code"}),
	}
}

// ObserveRun implements reconcile.Observer.
func (m *Metrics) ObserveRun(res *reconcile.Result, err error) {
	if res != nil {
		m.Pulled.Add(float64(res.Pulled))
		m.Found.Add(float64(res.Found))
		m.Squelched.Add(float64(res.Squelched))
		m.Upserted.Add(float64(res.Upserted))
		m.MarkedDeleted.Add(float64(len(res.MarkedDeleted)))
		if res.Mismatch {
			m.Mismatches.Inc()
		}
		if res.BackoffTripped {
			m.BackoffTrips.Inc()
		}
		m.Duration.Observe(res.Elapsed.Seconds())
	}

	switch {
	case err != nil:
		m.Runs.WithLabelValues(OutcomeFailed).Inc()
		m.observeFailures(err)
	case res != nil && res.NoOp():
		m.Runs.WithLabelValues(OutcomeNoOp).Inc()
		m.LastSuccess.Set(float64(time.Now().Unix()))
	default:
		m.Runs.WithLabelValues(OutcomeSuccess).Inc()
		m.LastSuccess.Set(float64(time.Now().Unix()))
	}
}

func (m *Metrics) observeFailures(err error) {
	var agg *errors.AggregateError
	if !errors.As(err, &agg) {
		m.Failures.WithLabelValues(errors.KindOf(err).String()).Inc()
		return
	}
	for _, e := range agg.Errors {
		m.Failures.WithLabelValues(errors.KindOf(e).String()).Inc()
	}
}

// ObserveRequest records one HTTP API request.
func (m *Metrics) ObserveRequest(method string, code int) {
	m.Requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
