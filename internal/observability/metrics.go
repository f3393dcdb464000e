package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	steerTotal   prometheus.Counter

	observationTotal  *prometheus.CounterVec
	promotionTotal    *prometheus.CounterVec
	compactionTotal   *prometheus.CounterVec
	historyLines      prometheus.Gauge
	unroutedTotal     prometheus.Counter
	invocationTotal   *prometheus.CounterVec
	invocationSeconds prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "session_queue_size",
					Help: "Current queued task count by busy policy.",
				},
				[]string{"policy"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "session_enqueue_total",
					Help: "Total enqueue operations by busy policy.",
				},
				[]string{"policy"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "session_dequeue_total",
					Help: "Total completed tasks by status.",
				},
				[]string{"status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "session_task_duration_seconds",
					Help:    "Task execution duration in seconds by status.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"status"},
			),
			steerTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "session_steer_total",
					Help: "Total steer interrupts delivered to active runs.",
				},
			),
			observationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "observation_append_total",
					Help: "Total observation events appended by trust class and status.",
				},
				[]string{"trust", "status"},
			),
			promotionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "observation_promotion_total",
					Help: "Total promotion decisions by outcome class.",
				},
				[]string{"class"},
			),
			compactionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "history_compaction_total",
					Help: "Total compaction attempts by result.",
				},
				[]string{"result"},
			),
			historyLines: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "history_live_lines",
					Help: "Line count of the live observation history after the last append or compaction.",
				},
			),
			unroutedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "routing_unrouted_total",
					Help: "Total inbound envelopes that matched no routing group.",
				},
			),
			invocationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_invocation_total",
					Help: "Total agent invocations by status.",
				},
				[]string{"status"},
			),
			invocationSeconds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_invocation_duration_seconds",
					Help:    "Agent invocation duration in seconds.",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.steerTotal,
			m.observationTotal,
			m.promotionTotal,
			m.compactionTotal,
			m.historyLines,
			m.unroutedTotal,
			m.invocationTotal,
			m.invocationSeconds,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is
// called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(policy string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(policy).Inc()
	m.queueSize.WithLabelValues(policy).Set(float64(queueSize))
}

func RecordQueueCompletion(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(status).Inc()
	m.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordSteer() {
	getMetrics().steerTotal.Inc()
}

func RecordObservation(trust, status string) {
	getMetrics().observationTotal.WithLabelValues(trust, status).Inc()
}

func RecordPromotion(class string) {
	getMetrics().promotionTotal.WithLabelValues(class).Inc()
}

func RecordCompaction(result string) {
	getMetrics().compactionTotal.WithLabelValues(result).Inc()
}

func SetHistoryLines(lines int) {
	getMetrics().historyLines.Set(float64(lines))
}

func RecordUnrouted() {
	getMetrics().unroutedTotal.Inc()
}

func RecordInvocation(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.invocationTotal.WithLabelValues(status).Inc()
	m.invocationSeconds.Observe(duration.Seconds())
}
