// Package metrics defines the Prometheus collectors for extension requests.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agentx-labs/extmgr/internal/exterr"
)

// Request kinds.
const (
	KindInstall   = "install"
	KindLoad      = "load"
	KindLoadAll   = "load_all"
	KindUninstall = "uninstall"
)

// Request outcomes besides the store outcomes (installed, upgraded,
// reinstalled).
const (
	OutcomeLoaded      = "loaded"
	OutcomeUninstalled = "uninstalled"
	OutcomeFailed      = "failed"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LoadErrors      *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extmgr_requests_total",
				Help: "Total number of extension requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extmgr_request_duration_seconds",
				Help:    "Extension request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
		LoadErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extmgr_load_errors_total",
				Help: "Total number of extension load failures by reason",
			},
			[]string{"reason"},
		),
	}
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind, outcome).Inc()
	m.RequestDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveLoadError counts a failure under its error kind, or "other" when
// err is not classified.
func (m *Metrics) ObserveLoadError(err error) {
	if m == nil || err == nil {
		return
	}
	reason := "other"
	var e *exterr.Error
	if errors.As(err, &e) {
		reason = e.Kind.String()
	}
	m.LoadErrors.WithLabelValues(reason).Inc()
}
