package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for tradeflow.
// The Record helpers accept a nil receiver so components can run without metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Plan store metrics
	PlanOperations *prometheus.CounterVec

	// Execution metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActiveExecutions  prometheus.Gauge
	StepExecutions    *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec

	// Module dispatch metrics
	Dispatches      *prometheus.CounterVec
	DispatchLatency *prometheus.HistogramVec

	// Notification metrics
	NotificationsPublished *prometheus.CounterVec
	NotificationsDropped   *prometheus.CounterVec
	WebSocketConnections   prometheus.Gauge

	// Chat metrics
	ChatMessages *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		PlanOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_plan_operations_total",
				Help: "Total number of plan store operations",
			},
			[]string{"operation", "outcome"},
		),

		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_plan_executions_total",
				Help: "Total number of finished plan executions",
			},
			[]string{"status"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeflow_plan_execution_duration_seconds",
				Help:    "Plan execution duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		ActiveExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradeflow_plan_executions_active",
				Help: "Number of plan executions in progress",
			},
		),
		StepExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_step_executions_total",
				Help: "Total number of executed steps",
			},
			[]string{"type", "status"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeflow_step_duration_seconds",
				Help:    "Step execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"type"},
		),

		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_module_dispatches_total",
				Help: "Total number of module dispatches",
			},
			[]string{"module", "outcome"},
		),
		DispatchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeflow_module_dispatch_latency_seconds",
				Help:    "Module dispatch latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"module"},
		),

		NotificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_notifications_published_total",
				Help: "Total number of notification deliveries",
			},
			[]string{"type"},
		),
		NotificationsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_notifications_dropped_total",
				Help: "Total number of notifications dropped for slow subscribers",
			},
			[]string{"type"},
		),
		WebSocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradeflow_websocket_connections",
				Help: "Number of open WebSocket connections",
			},
		),

		ChatMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_chat_messages_total",
				Help: "Total number of chat log operations",
			},
			[]string{"operation"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_errors_total",
				Help: "Total number of errors by code",
			},
			[]string{"error_code", "component"},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordPlanOperation records a plan store call.
func (m *Metrics) RecordPlanOperation(op string, err error) {
	if m == nil {
		return
	}
	m.PlanOperations.WithLabelValues(op, outcome(err)).Inc()
}

// ExecutionStarted increments the active executions gauge.
func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.ActiveExecutions.Inc()
}

// ExecutionFinished records a terminal execution.
func (m *Metrics) ExecutionFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveExecutions.Dec()
	m.Executions.WithLabelValues(status).Inc()
	m.ExecutionDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordStep records one finished step.
func (m *Metrics) RecordStep(stepType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepExecutions.WithLabelValues(stepType, status).Inc()
	m.StepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// RecordDispatch records one module dispatch. outcome is the error kind or "success".
func (m *Metrics) RecordDispatch(module, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(module, result).Inc()
	m.DispatchLatency.WithLabelValues(module).Observe(d.Seconds())
}

// RecordNotification records a delivery or a drop for one subscriber.
func (m *Metrics) RecordNotification(eventType string, dropped bool) {
	if m == nil {
		return
	}
	if dropped {
		m.NotificationsDropped.WithLabelValues(eventType).Inc()
		return
	}
	m.NotificationsPublished.WithLabelValues(eventType).Inc()
}

// WebSocketOpened and WebSocketClosed track live connections.
func (m *Metrics) WebSocketOpened() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Inc()
}

func (m *Metrics) WebSocketClosed() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Dec()
}

// RecordChat records a chat log operation.
func (m *Metrics) RecordChat(op string) {
	if m == nil {
		return
	}
	m.ChatMessages.WithLabelValues(op).Inc()
}

// RecordError counts an error by code.
func (m *Metrics) RecordError(code, component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
