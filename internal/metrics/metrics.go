// Package metrics provides Prometheus instrumentation for the ledger and decision loop.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesRecordedTotal counts trades committed to the ledger, by action.
	TradesRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_trades_recorded_total",
		Help: "Total number of trades recorded in the ledger",
	}, []string{"action"})

	// LedgerRejectionsTotal counts buy/sell requests the ledger refused.
	LedgerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_ledger_rejections_total",
		Help: "Trade requests rejected by the ledger",
	}, []string{"action", "kind"})

	// CapitalFlowsTotal counts deposits and withdrawals.
	CapitalFlowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_capital_flows_total",
		Help: "Total number of capital flows recorded",
	}, []string{"type"})

	// DecisionsTotal counts final decisions by action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_decisions_total",
		Help: "Decisions returned by the decision engine",
	}, []string{"action"})

	// RiskRejectionsTotal counts decisions downgraded to HOLD by the risk gate.
	RiskRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_risk_rejections_total",
		Help: "Decisions rejected by the risk gate",
	})

	// PortfolioEquity tracks the latest marked-to-market equity.
	PortfolioEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_total_equity",
		Help: "Latest total equity of the portfolio",
	})

	// QuoteRequestDuration tracks latency of market-data requests.
	QuoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_quote_request_duration_seconds",
		Help:    "Market data request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern returns the matched chi route so label values stay bounded.
// Requests that matched no route share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
