package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	transitionCounter     *prometheus.CounterVec
	adjustmentCounter     prometheus.Counter
	anomalyAlertCounter   prometheus.Counter
	notificationCounter   *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movement_transitions_total",
			Help: "Movement status transitions applied",
		}, []string{"kind", "status"})

		adjustmentCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "balance_adjustments_total",
			Help: "Direct administrative balance adjustments",
		})

		anomalyAlertCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deposit_anomaly_alerts_total",
			Help: "Aggregate deposit anomaly alerts emitted",
		})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbound notification outcomes",
		}, []string{"channel", "outcome"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transitionCounter,
			adjustmentCounter,
			anomalyAlertCounter,
			notificationCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementMovementTransition(kind, status string) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.WithLabelValues(kind, status).Inc()
}

func IncrementBalanceAdjustment() {
	if adjustmentCounter == nil {
		return
	}
	adjustmentCounter.Inc()
}

func IncrementAnomalyAlert() {
	if anomalyAlertCounter == nil {
		return
	}
	anomalyAlertCounter.Inc()
}

func IncrementNotification(channel, outcome string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(channel, outcome).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
