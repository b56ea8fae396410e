// Package telemetry exposes Prometheus metrics for the HTTP surface and the
// blood-unit lifecycle. Collectors live on a private registry so tests can
// build independent providers.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bloodlink"

// Provider owns the registry and every collector the server reports.
type Provider struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	inventory    *prometheus.GaugeVec
	unitsCreated *prometheus.CounterVec
	unitsIssued  *prometheus.CounterVec
	unitsExpired *prometheus.CounterVec
	sweepRuns    *prometheus.CounterVec
	sweepLast    prometheus.Gauge
	dbPoolConns  *prometheus.GaugeVec
}

// NewProvider registers all collectors. withRuntime adds the Go and process
// collectors, which only make sense once per process.
func NewProvider(withRuntime bool) *Provider {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		inventory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "available_units",
			Help:      "Available blood units per blood group, as of the last recompute.",
		}, []string{"blood_group"}),
		unitsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "units",
			Name:      "created_total",
			Help:      "Blood units registered.",
		}, []string{"blood_group"}),
		unitsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "units",
			Name:      "issued_total",
			Help:      "Blood units issued to patients.",
		}, []string{"blood_group"}),
		unitsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "units",
			Name:      "expired_total",
			Help:      "Blood units marked expired by a sweep.",
		}, []string{"blood_group"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Expiry sweeps executed.",
		}, []string{"success"}),
		sweepLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last successful expiry sweep.",
		}),
		dbPoolConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Database pool connections by state.",
		}, []string{"state"}),
	}

	p.registry.MustRegister(
		p.httpInFlight, p.httpRequests, p.httpDuration,
		p.inventory, p.unitsCreated, p.unitsIssued, p.unitsExpired,
		p.sweepRuns, p.sweepLast, p.dbPoolConns,
	)
	if withRuntime {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

// Registry returns the underlying registry, mainly for tests.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// MetricsMiddleware records request count, latency and in-flight requests.
// It must run outside the request logger so the status it sees is the one
// written by the error handler.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.httpInFlight.Inc()
			defer p.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}

			method := c.Request().Method
			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}

// SetInventory records the available count for a group.
func (p *Provider) SetInventory(group string, available int) {
	p.inventory.WithLabelValues(group).Set(float64(available))
}

func (p *Provider) UnitCreated(group string) {
	p.unitsCreated.WithLabelValues(group).Inc()
}

func (p *Provider) UnitIssued(group string) {
	p.unitsIssued.WithLabelValues(group).Inc()
}

func (p *Provider) UnitsExpired(group string, n int) {
	p.unitsExpired.WithLabelValues(group).Add(float64(n))
}

// SweepFinished records one expiry sweep run.
func (p *Provider) SweepFinished(at time.Time, err error) {
	if err != nil {
		p.sweepRuns.WithLabelValues("false").Inc()
		return
	}
	p.sweepRuns.WithLabelValues("true").Inc()
	p.sweepLast.Set(float64(at.Unix()))
}

// SetPoolStats records database pool connection counts.
func (p *Provider) SetPoolStats(total, idle, acquired int32) {
	p.dbPoolConns.WithLabelValues("total").Set(float64(total))
	p.dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	p.dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}
