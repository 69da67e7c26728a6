package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/decertify/decertify/internal/ledger"
)

var (
	decertIssuancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decertify_issuances_total",
		Help: "Total certificate issuance attempts by result.",
	}, []string{"result"})

	decertVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decertify_verifications_total",
		Help: "Total verification requests by verdict.",
	}, []string{"verdict"})

	decertLedgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decertify_ledger_requests_total",
		Help: "Total ledger submit/query calls by operation and result.",
	}, []string{"op", "result"})

	decertRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decertify_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	decertRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "decertify_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		decertRequestsTotal.WithLabelValues(method, path, status).Inc()
		decertRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordIssuance records an issuance attempt outcome ("ok" or "failed").
func RecordIssuance(result string) {
	decertIssuancesTotal.WithLabelValues(result).Inc()
}

// RecordVerification records a verification verdict.
func RecordVerification(verdict string) {
	decertVerificationsTotal.WithLabelValues(verdict).Inc()
}

// RecordLedgerRequest records a ledger call outcome.
func RecordLedgerRequest(op string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	decertLedgerRequestsTotal.WithLabelValues(op, result).Inc()
}

// instrumentedLedger decorates a ledger.Client with call metrics.
type instrumentedLedger struct {
	next ledger.Client
}

// InstrumentLedger wraps a ledger client so every submit/query is counted.
func InstrumentLedger(next ledger.Client) ledger.Client {
	return &instrumentedLedger{next: next}
}

func (l *instrumentedLedger) Submit(ctx context.Context, sub ledger.Submission) (*ledger.Receipt, error) {
	receipt, err := l.next.Submit(ctx, sub)
	RecordLedgerRequest("submit", err == nil)
	return receipt, err
}

func (l *instrumentedLedger) Query(ctx context.Context, fingerprint string) (*ledger.AnchorInfo, error) {
	info, err := l.next.Query(ctx, fingerprint)
	RecordLedgerRequest("query", err == nil)
	return info, err
}
