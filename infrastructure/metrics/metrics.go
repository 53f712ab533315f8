// Package metrics provides Prometheus metrics collection for the coordinator.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platformforge/transfer-coordinator/infrastructure/runtime"
)

// Metrics holds all Prometheus collectors exposed by the coordinator.
type Metrics struct {
	// HTTP (control-plane) metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Transfer saga metrics
	TransfersTotal         *prometheus.CounterVec
	TransferPhaseDuration  *prometheus.HistogramVec
	TransfersActive        prometheus.Gauge
	ValidationTimeoutTotal prometheus.Counter

	// Persistence metrics
	ExportsStored            prometheus.Gauge
	TransactionLogsPersisted prometheus.Gauge

	// Subscription fabric metrics
	SubscriptionBroadcastsTotal  *prometheus.CounterVec
	SubscriptionBroadcastsDropped *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered against
// the default Prometheus registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of control-plane HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Control-plane HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of control-plane HTTP requests being processed",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors by code",
			},
			[]string{"service", "code", "operation"},
		),

		TransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfers_total",
				Help: "Total number of platform transfers by terminal result",
			},
			[]string{"result"},
		),
		TransferPhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transfer_phase_duration_seconds",
				Help:    "Duration of each transfer saga phase in seconds",
				Buckets: []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),
		TransfersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "transfers_active",
				Help: "Current number of transfers in the active transfer map",
			},
		),
		ValidationTimeoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "validation_timeouts_total",
				Help: "Total number of transfers that hit the validation timer",
			},
		),

		ExportsStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exports_stored",
				Help: "Current number of stored export records",
			},
		),
		TransactionLogsPersisted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "transaction_logs_persisted",
				Help: "Current number of persisted transaction logs",
			},
		),

		SubscriptionBroadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_broadcasts_total",
				Help: "Total number of subscription broadcasts sent",
			},
			[]string{"channel"},
		),
		SubscriptionBroadcastsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_broadcasts_dropped_total",
				Help: "Total number of subscription broadcasts coalesced away or rate-limited",
			},
			[]string{"channel"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.TransfersTotal,
			m.TransferPhaseDuration,
			m.TransfersActive,
			m.ValidationTimeoutTotal,
			m.ExportsStored,
			m.TransactionLogsPersisted,
			m.SubscriptionBroadcastsTotal,
			m.SubscriptionBroadcastsDropped,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records a control-plane HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error by code and operation.
func (m *Metrics) RecordError(service, code, operation string) {
	m.ErrorsTotal.WithLabelValues(service, code, operation).Inc()
}

// RecordTransferResult records a transfer reaching a terminal state.
func (m *Metrics) RecordTransferResult(result string) {
	m.TransfersTotal.WithLabelValues(result).Inc()
}

// RecordPhaseDuration records the wall-clock duration of one saga phase.
func (m *Metrics) RecordPhaseDuration(phase string, duration time.Duration) {
	m.TransferPhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// SetActiveTransfers sets the active-transfer gauge.
func (m *Metrics) SetActiveTransfers(count int) {
	m.TransfersActive.Set(float64(count))
}

// RecordValidationTimeout increments the validation-timeout counter.
func (m *Metrics) RecordValidationTimeout() {
	m.ValidationTimeoutTotal.Inc()
}

// SetExportsStored sets the export-store size gauge.
func (m *Metrics) SetExportsStored(count int) {
	m.ExportsStored.Set(float64(count))
}

// SetTransactionLogsPersisted sets the persisted-transaction-log size gauge.
func (m *Metrics) SetTransactionLogsPersisted(count int) {
	m.TransactionLogsPersisted.Set(float64(count))
}

// RecordBroadcast records a subscription broadcast sent on a channel.
func (m *Metrics) RecordBroadcast(channel string) {
	m.SubscriptionBroadcastsTotal.WithLabelValues(channel).Inc()
}

// RecordBroadcastDropped records a broadcast coalesced away or rate-limited.
func (m *Metrics) RecordBroadcastDropped(channel string) {
	m.SubscriptionBroadcastsDropped.WithLabelValues(channel).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
