// Package metrics exposes poll activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

// Ensure Observer implements the interface.
var _ driven.PollObserver = (*Observer)(nil)

// Observer records poll events.
type Observer struct {
	fetchAttempts  *prometheus.CounterVec
	dispatched     *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	commits        *prometheus.CounterVec
	lastCycleEnded *prometheus.GaugeVec
}

// NewObserver registers the poll metrics with reg.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		fetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudpoll_fetch_attempts_total",
				Help: "Provider feed calls by outcome class",
			},
			[]string{"account_type", "class"},
		),
		dispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudpoll_records_dispatched_total",
				Help: "Action records handed to handlers",
			},
			[]string{"account_type", "action", "status"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudpoll_items_dropped_total",
				Help: "Raw changes the normaliser skipped",
			},
			[]string{"account_type", "reason"},
		),
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudpoll_cycles_total",
				Help: "Finished poll cycles by end state",
			},
			[]string{"account_type", "state"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudpoll_cycle_duration_seconds",
				Help:    "Poll cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"account_type"},
		),
		commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudpoll_position_commits_total",
				Help: "Position store writes",
			},
			[]string{"account_type"},
		),
		lastCycleEnded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cloudpoll_last_cycle_timestamp_seconds",
				Help: "Unix time the last cycle of an account finished",
			},
			[]string{"account_id"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a metrics HTTP handler for a specific registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// FetchAttempt counts a feed call.
func (o *Observer) FetchAttempt(accountType domain.AccountType, err error) {
	class := "ok"
	if err != nil {
		class = domain.ClassName(err)
	}
	o.fetchAttempts.WithLabelValues(string(accountType), class).Inc()
}

// Dispatched counts a handler call.
func (o *Observer) Dispatched(accountType domain.AccountType, action domain.Action, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.dispatched.WithLabelValues(string(accountType), string(action), status).Inc()
}

// Dropped counts a skipped item.
func (o *Observer) Dropped(accountType domain.AccountType, reason string) {
	o.dropped.WithLabelValues(string(accountType), reason).Inc()
}

// CycleFinished records the outcome of a cycle.
func (o *Observer) CycleFinished(report domain.CycleReport, elapsed time.Duration) {
	accountType := string(report.AccountType)
	state := string(report.State)
	if report.Cancelled {
		state = "CANCELLED"
	}
	o.cycles.WithLabelValues(accountType, state).Inc()
	o.cycleDuration.WithLabelValues(accountType).Observe(elapsed.Seconds())
	if report.Committed {
		o.commits.WithLabelValues(accountType).Inc()
	}
	ended := report.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	o.lastCycleEnded.WithLabelValues(report.AccountID).Set(float64(ended.Unix()))
}
