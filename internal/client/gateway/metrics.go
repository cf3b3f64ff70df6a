package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments gateway traffic. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	expired  prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophauth",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Backend calls by method and outcome (HTTP status or \"error\").",
		}, []string{"method", "code"}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gophauth",
			Subsystem: "gateway",
			Name:      "session_expired_total",
			Help:      "HTTP 401 answers that ended the local session.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gophauth",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Backend call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) observe(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) sessionExpired() {
	if m == nil {
		return
	}
	m.expired.Inc()
}
