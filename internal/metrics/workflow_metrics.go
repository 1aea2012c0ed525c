package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics содержит метрики жизненного цикла заказов.
type WorkflowMetrics struct {
	// Счётчики заказов
	ordersStarted   prometheus.Counter
	ordersDelivered prometheus.Counter
	ordersFailed    prometheus.Counter

	// Счётчики транспорта
	broadcastRetries prometheus.Counter
	repliesDropped   prometheus.Counter

	// Счётчик событий ledger
	storeEvents prometheus.Counter

	// Гистограмма времени выполнения
	orderDuration prometheus.Histogram

	// Gauge для активных потоковых сессий
	activeStreams prometheus.Gauge
}

// NewWorkflowMetrics создаёт новый экземпляр метрик workflow.
func NewWorkflowMetrics() *WorkflowMetrics {
	return newWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkflowMetrics{
		ordersStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lms_orders_started_total",
			Help: "Total number of order workflows started",
		}),
		ordersDelivered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lms_orders_delivered_total",
			Help: "Total number of orders delivered successfully",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lms_orders_failed_total",
			Help: "Total number of order workflows failed",
		}),
		broadcastRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lms_broadcast_retries_total",
			Help: "Total number of broadcast attempts retried",
		}),
		repliesDropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lms_replies_dropped_total",
			Help: "Total number of participant replies dropped as unparseable",
		}),
		storeEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lms_store_events_total",
			Help: "Total number of order events recorded in the store",
		}),
		orderDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "lms_order_duration_seconds",
			Help:    "Duration of order workflows in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		activeStreams: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "lms_stream_sessions_active",
			Help: "Number of currently active streaming order sessions",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderStarted увеличивает счётчик запущенных заказов.
func (m *WorkflowMetrics) RecordOrderStarted() {
	m.ordersStarted.Inc()
}

// RecordOrderDelivered увеличивает счётчик доставленных заказов.
func (m *WorkflowMetrics) RecordOrderDelivered() {
	m.ordersDelivered.Inc()
}

// RecordOrderFailed увеличивает счётчик неудачных заказов.
func (m *WorkflowMetrics) RecordOrderFailed() {
	m.ordersFailed.Inc()
}

// RecordBroadcastRetry увеличивает счётчик повторных попыток broadcast.
func (m *WorkflowMetrics) RecordBroadcastRetry() {
	m.broadcastRetries.Inc()
}

// RecordReplyDropped увеличивает счётчик отброшенных ответов.
func (m *WorkflowMetrics) RecordReplyDropped() {
	m.repliesDropped.Inc()
}

// RecordStoreEvent увеличивает счётчик событий, записанных в ledger.
func (m *WorkflowMetrics) RecordStoreEvent() {
	m.storeEvents.Inc()
}

// RecordOrderDuration записывает время выполнения заказа.
func (m *WorkflowMetrics) RecordOrderDuration(duration time.Duration) {
	m.orderDuration.Observe(duration.Seconds())
}

// StreamSessionOpened увеличивает количество активных потоковых сессий.
func (m *WorkflowMetrics) StreamSessionOpened() {
	m.activeStreams.Inc()
}

// StreamSessionClosed уменьшает количество активных потоковых сессий.
func (m *WorkflowMetrics) StreamSessionClosed() {
	m.activeStreams.Dec()
}
