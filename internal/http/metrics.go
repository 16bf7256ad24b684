package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler exposes the server counters on a registry private to s, so
// several servers can live in one process.
func (s *Server) metricsHandler() http.Handler {
	reg := prometheus.NewRegistry()

	counter := func(name, help string, value func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(value())
		})
	}
	gauge := func(name, help string, value func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, value)
	}

	reg.MustRegister(
		counter("http_requests_total", "Total number of HTTP requests", func() int64 {
			return s.traceMiddleware.GetMetrics().TotalRequests
		}),
		counter("http_server_errors_total", "Responses with a 5xx status", func() int64 {
			return s.traceMiddleware.GetMetrics().ServerErrors
		}),
		gauge("http_response_time_avg_seconds", "Average response time", func() float64 {
			return s.traceMiddleware.GetMetrics().AverageResponseTime.Seconds()
		}),
		counter("txnstats_queries_total", "Analytical queries answered", s.appMetrics.queries.Load),
		counter("txnstats_reports_total", "Full reports built", s.appMetrics.reports.Load),
		counter("txnstats_cache_invalidations_total", "Dataset cache invalidations", s.appMetrics.invalidations.Load),
		gauge("txnstats_dataset_cached", "Whether the dataset is cached", func() float64 {
			if s.dataset.Cached() {
				return 1
			}
			return 0
		}),
		counter("security_suspicious_requests_total", "Requests flagged as suspicious", func() int64 {
			return s.securityDetector.GetMetrics().SuspiciousRequests
		}),
		counter("security_invalid_ip_total", "Unparseable client addresses", func() int64 {
			return s.securityDetector.GetMetrics().InvalidIPAttempts
		}),
		counter("rate_limit_hits_total", "Requests rejected by the rate limiter", func() int64 {
			return s.rateLimiter.GetMetrics().TotalHits
		}),
		gauge("rate_limit_active_clients", "Clients tracked by the rate limiter", func() float64 {
			return float64(s.rateLimiter.ActiveClients())
		}),
		gauge("app_uptime_seconds", "Seconds since start", func() float64 {
			return time.Since(s.appMetrics.uptime).Seconds()
		}),
	)

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
