// Package metrics exposes Prometheus counters for HTTP traffic and for the
// clinical workflow (bills raised, items dispensed, lab results recorded).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hms"

// Metrics owns its registry so tests can build as many as they like.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	authAttempts   *prometheus.CounterVec
	bills          *prometheus.CounterVec
	billAmount     *prometheus.CounterVec
	dispensedItems prometheus.Counter
	labResults     prometheus.Counter
	appointments   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"status"}),
		bills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_total",
			Help:      "Bills raised by source (consultation, lab, pharmacy).",
		}, []string{"source"}),
		billAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billed_amount_total",
			Help:      "Sum of billed amounts by source.",
		}, []string{"source"}),
		dispensedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispensed_items_total",
			Help:      "Medicine units dispensed by the pharmacy.",
		}),
		labResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lab_results_total",
			Help:      "Lab requests processed into results.",
		}),
		appointments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_total",
			Help:      "Appointments booked.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.authAttempts,
		m.bills, m.billAmount, m.dispensedItems, m.labResults, m.appointments,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchPool exports the connection pool size as gauges.
func (m *Metrics) WatchPool(stats func() (total, idle int32)) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections",
			Help:      "Open connections in the pgx pool.",
		}, func() float64 { t, _ := stats(); return float64(t) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_idle_connections",
			Help:      "Idle connections in the pgx pool.",
		}, func() float64 { _, i := stats(); return float64(i) }),
	)
}

// Middleware records count and latency per matched route. Unmatched paths
// are folded into one label to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) LoginAttempt(ok bool) {
	if m == nil {
		return
	}
	status := "failure"
	if ok {
		status = "success"
	}
	m.authAttempts.WithLabelValues(status).Inc()
}

// BillCreated counts one bill of amount against source.
func (m *Metrics) BillCreated(source string, amount float64) {
	if m == nil {
		return
	}
	m.bills.WithLabelValues(source).Inc()
	if amount > 0 {
		m.billAmount.WithLabelValues(source).Add(amount)
	}
}

func (m *Metrics) ItemsDispensed(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.dispensedItems.Add(float64(units))
}

func (m *Metrics) LabResultRecorded() {
	if m == nil {
		return
	}
	m.labResults.Inc()
}

func (m *Metrics) AppointmentBooked() {
	if m == nil {
		return
	}
	m.appointments.Inc()
}
