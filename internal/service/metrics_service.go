package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the background schedulers.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	autoReturnClosed  prometheus.Counter
	autoReturnScans   prometheus.Counter
	overdueReminders  prometheus.Counter
	overdueScans      prometheus.Counter
	transactionsSplit prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	autoReturnClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auto_return_closed_total",
		Help: "Transactions closed by the auto-return scheduler",
	})

	autoReturnScans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auto_return_scans_total",
		Help: "Scan passes executed by the auto-return scheduler",
	})

	overdueReminders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overdue_reminders_total",
		Help: "Overdue reminders emitted by the auto-overdue scheduler",
	})

	overdueScans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overdue_scans_total",
		Help: "Scan passes executed by the auto-overdue scheduler",
	})

	transactionsSplit := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "borrow_transactions_split_total",
		Help: "Mixed borrow submissions split into per-route transactions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, autoReturnClosed, autoReturnScans, overdueReminders, overdueScans, transactionsSplit, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		autoReturnClosed:  autoReturnClosed,
		autoReturnScans:   autoReturnScans,
		overdueReminders:  overdueReminders,
		overdueScans:      overdueScans,
		transactionsSplit: transactionsSplit,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAutoReturnScan counts a scheduler pass and how many transactions it
// closed.
func (m *MetricsService) RecordAutoReturnScan(closed int) {
	if m == nil {
		return
	}
	m.autoReturnScans.Inc()
	m.autoReturnClosed.Add(float64(closed))
}

// RecordOverdueScan counts a scheduler pass and how many reminders it sent.
func (m *MetricsService) RecordOverdueScan(reminders int) {
	if m == nil {
		return
	}
	m.overdueScans.Inc()
	m.overdueReminders.Add(float64(reminders))
}

// RecordSplit counts one mixed submission split into two transactions.
func (m *MetricsService) RecordSplit() {
	if m == nil {
		return
	}
	m.transactionsSplit.Inc()
}
