// Package metrics owns the Prometheus registry and the collectors the
// server and the export pipeline report into.
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

// Registry groups the application collectors around a private registry so
// tests can build independent instances.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ExportsTotal   *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec
	ExportPatients prometheus.Histogram
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_exports_total",
				Help: "Cohort exports by output format, disclosure mode and outcome",
			},
			[]string{"format", "mode", "outcome"},
		),
		ExportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cohort_export_duration_seconds",
				Help:    "Wall time to build and serialize a cohort export",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"format"},
		),
		ExportPatients: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cohort_export_patients",
				Help:    "Number of patients in each successful export",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HTTPRequestsTotal,
		r.HTTPRequestDuration,
		r.ExportsTotal,
		r.ExportDuration,
		r.ExportPatients,
	)
	return r
}

// Register adds extra collectors, e.g. the database pool collector.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
}

// ObserveExport records one export attempt. patients is ignored unless the
// outcome is "success".
func (r *Registry) ObserveExport(format, mode, outcome string, patients int, d time.Duration) {
	if r == nil {
		return
	}
	r.ExportsTotal.WithLabelValues(format, mode, outcome).Inc()
	r.ExportDuration.WithLabelValues(format).Observe(d.Seconds())
	if outcome == "success" {
		r.ExportPatients.Observe(float64(patients))
	}
}

// Middleware records request counts and latency keyed by route template so
// patient ids in paths do not explode label cardinality.
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			r.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			r.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
