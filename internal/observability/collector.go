// Package observability provides metrics collection and tracing for CLI operations.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// RequestMetrics holds timing and status information for a single HTTP request.
type RequestMetrics struct {
	Method     string
	Path       string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Error      error
}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalRequests   int
	FailedRequests  int
	Unauthorized    int
	Resends         int
	Refreshes       int
	FailedRefreshes int
	TotalLatency    time.Duration
}

// SessionCollector accumulates metrics across a CLI session in a private
// Prometheus registry. It is safe for concurrent use.
type SessionCollector struct {
	startTime time.Time

	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	resends   prometheus.Counter
	refreshes *prometheus.CounterVec
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	c := &SessionCollector{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gig",
			Name:      "api_requests_total",
			Help:      "API requests sent, by method and HTTP status (\"error\" when no response arrived).",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gig",
			Name:      "api_request_duration_seconds",
			Help:      "API round trip latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"method"}),
		resends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gig",
			Name:      "api_resends_total",
			Help:      "Requests resent after a session refresh.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gig",
			Name:      "session_refreshes_total",
			Help:      "Token refresh calls, by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(c.requests, c.latency, c.resends, c.refreshes)
	return c
}

// Registry exposes the underlying registry.
func (c *SessionCollector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records metrics for an HTTP request.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	status := "error"
	if m.Error == nil {
		status = strconv.Itoa(m.StatusCode)
	}
	c.requests.WithLabelValues(m.Method, status).Inc()
	c.latency.WithLabelValues(m.Method).Observe(m.Duration.Seconds())
}

// RecordResend records a request resent after a refresh.
func (c *SessionCollector) RecordResend() {
	c.resends.Inc()
}

// RecordRefresh records a token refresh call.
func (c *SessionCollector) RecordRefresh(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "renewed"
	}
	c.refreshes.WithLabelValues(outcome).Inc()
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	s := SessionMetrics{StartTime: c.startTime, EndTime: time.Now()}

	families, err := c.registry.Gather()
	if err != nil {
		return s
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "gig_api_requests_total":
				n := int(m.GetCounter().GetValue())
				s.TotalRequests += n
				switch status := label(m, "status"); {
				case status == "error":
					s.FailedRequests += n
				case status == "401":
					s.Unauthorized += n
					s.FailedRequests += n
				case status >= "400":
					s.FailedRequests += n
				}
			case "gig_api_request_duration_seconds":
				s.TotalLatency += time.Duration(m.GetHistogram().GetSampleSum() * float64(time.Second))
			case "gig_api_resends_total":
				s.Resends += int(m.GetCounter().GetValue())
			case "gig_session_refreshes_total":
				n := int(m.GetCounter().GetValue())
				s.Refreshes += n
				if label(m, "outcome") == "failed" {
					s.FailedRefreshes += n
				}
			}
		}
	}
	return s
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
