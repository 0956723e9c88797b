package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds the Prometheus collectors of the service. Every method is
// safe on a nil receiver so callers never need to check.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesTotal      *prometheus.CounterVec
	revenueTotal    prometheus.Counter
	stockRejections prometheus.Counter
	itemsDepleted   prometheus.Counter
	jobsTotal       *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estoque_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "estoque_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		salesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estoque_sales_finalized_total",
			Help: "Finalized sales by payment method.",
		}, []string{"payment_method"}),
		revenueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estoque_sales_revenue_total",
			Help: "Sum of finalized sale totals.",
		}),
		stockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estoque_sales_insufficient_stock_total",
			Help: "Sales rejected for insufficient stock.",
		}),
		itemsDepleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estoque_items_depleted_total",
			Help: "Items deleted because a sale took their last unit.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estoque_jobs_processed_total",
			Help: "Background jobs by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	registry.MustRegister(
		prometheus.NewGoCollector(),
		m.requestsTotal, m.requestDuration,
		m.salesTotal, m.revenueTotal, m.stockRejections, m.itemsDepleted,
		m.jobsTotal,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) SaleFinalized(method string, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(method).Inc()
	m.revenueTotal.Add(total.InexactFloat64())
}

func (m *Metrics) StockRejected() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
}

func (m *Metrics) ItemsDepleted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.itemsDepleted.Add(float64(n))
}

func (m *Metrics) JobProcessed(jobType, outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(jobType, outcome).Inc()
}
