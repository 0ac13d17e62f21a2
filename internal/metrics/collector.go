package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes prometheus metrics for the edge server and the service
// engines. It registers against the supplied registerer so that tests can
// construct isolated collectors.
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	apiOperations *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{}

	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nimbus_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "service", "status"})

	c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nimbus_http_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "service"})

	c.apiOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nimbus_api_operations_total",
		Help: "Total number of API operations by service and action",
	}, []string{"service", "action", "status"})

	reg.MustRegister(c.httpRequests, c.httpDuration, c.apiOperations)
	return c
}

func (c *Collector) RecordHTTPRequest(method, service, status string) {
	c.httpRequests.WithLabelValues(method, service, status).Inc()
}

func (c *Collector) RecordHTTPDuration(method, service string, duration time.Duration) {
	c.httpDuration.WithLabelValues(method, service).Observe(duration.Seconds())
}

func (c *Collector) RecordOperation(service, action, status string) {
	c.apiOperations.WithLabelValues(service, action, status).Inc()
}
