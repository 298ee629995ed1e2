// Package metrics exposes Prometheus instruments for credential
// verification and session lifecycle events.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
)

const namespace = "auth"

// ResultOK labels successful verifications.
const ResultOK = "OK"

// Session lifecycle events.
const (
	SessionStarted    = "started"
	SessionTerminated = "terminated"
	SessionSwept      = "swept"
)

// Recorder records authentication metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	verifications *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	sessions      *prometheus.CounterVec
}

// NewRecorder registers the instruments with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Credential verifications by method and result.",
		}, []string{"method", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_duration_seconds",
			Help:      "Time spent verifying a credential.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events.",
		}, []string{"event"}),
	}
}

// ObserveVerification counts one verification. An empty reason means success.
func (r *Recorder) ObserveVerification(method string, reason common.Reason, d time.Duration) {
	if r == nil {
		return
	}
	result := string(reason)
	if result == "" {
		result = ResultOK
	}
	r.verifications.WithLabelValues(method, result).Inc()
	r.latency.WithLabelValues(method).Observe(d.Seconds())
}

// SessionEvent adds n occurrences of event.
func (r *Recorder) SessionEvent(event string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sessions.WithLabelValues(event).Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
