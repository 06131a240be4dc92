// Package metrics exposes Prometheus instruments for the remote-call layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbxdash/admin-relay/internal/connectivity"
	"github.com/rbxdash/admin-relay/internal/ratelimit"
	"github.com/rbxdash/admin-relay/internal/remote"
)

const (
	namespace = "adminrelay"
)

var states = []connectivity.State{
	connectivity.StateChecking,
	connectivity.StateOnline,
	connectivity.StateOffline,
	connectivity.StateReconnecting,
}

// Recorder owns one registry so several sessions (and tests) never collide on
// the process-wide default registerer.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
	state           *prometheus.GaugeVec
	restored        prometheus.Gauge
	consecutiveFail prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "attempts_total",
				Help:      "Individual HTTP attempts by classified result",
			},
			[]string{"kind"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "outcomes_total",
				Help:      "Terminal outcomes of logical calls",
			},
			[]string{"kind"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "call_duration_seconds",
				Help:      "Duration of logical calls including retries and backoff",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "rejections_total",
				Help:      "Calls rejected locally by the rate limiter",
			},
			[]string{"action"},
		),
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connectivity",
				Name:      "state",
				Help:      "Current connectivity state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		),
		restored: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connectivity",
				Name:      "restored",
				Help:      "Whether the connection-restored acknowledgment is showing (0/1)",
			},
		),
		consecutiveFail: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connectivity",
				Name:      "consecutive_failures",
				Help:      "Failure signals seen since the last success",
			},
		),
	}
	r.setState(connectivity.StateChecking)
	return r
}

func (r *Recorder) ObserveAttempt(kind remote.Kind) {
	r.attempts.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) ObserveOutcome(kind remote.Kind, _ int, elapsed time.Duration) {
	r.outcomes.WithLabelValues(kind.String()).Inc()
	r.callDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveRejection(action ratelimit.Action) {
	r.rejections.WithLabelValues(string(action)).Inc()
}

// ObserveConnectivity is a connectivity.Listener.
func (r *Recorder) ObserveConnectivity(_, next connectivity.Snapshot) {
	r.setState(next.State)
	r.consecutiveFail.Set(float64(next.Failures))
	if next.Restored {
		r.restored.Set(1)
	} else {
		r.restored.Set(0)
	}
}

func (r *Recorder) setState(current connectivity.State) {
	for _, s := range states {
		value := 0.0
		if s == current {
			value = 1.0
		}
		r.state.WithLabelValues(string(s)).Set(value)
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
