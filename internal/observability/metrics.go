package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the client-side collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry       *prometheus.Registry
	RemoteRequests *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec
	Commits        *prometheus.CounterVec
	ServerRequests *prometheus.CounterVec
	DispensedFeeds prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RemoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "petfeeder_remote_requests_total",
				Help: "Requests sent to the feeder backend by operation and status.",
			},
			[]string{"op", "status"},
		),
		RemoteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "petfeeder_remote_request_duration_seconds",
				Help:    "Latency of requests to the feeder backend.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		Commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "petfeeder_commits_total",
				Help: "Schedule commits by outcome.",
			},
			[]string{"outcome"},
		),
		ServerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feeder_devserver_requests_total",
				Help: "Requests served by the development backend by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		DispensedFeeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeder_devserver_dispensed_total",
			Help: "Scheduled feeds recorded by the development backend.",
		}),
	}
	m.Registry.MustRegister(m.RemoteRequests, m.RemoteLatency, m.Commits, m.ServerRequests, m.DispensedFeeds)
	return m
}

func (m *Metrics) ObserveRemote(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RemoteRequests.WithLabelValues(op, label).Inc()
	m.RemoteLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveCommit(outcome string) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDispense() {
	if m == nil {
		return
	}
	m.DispensedFeeds.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
