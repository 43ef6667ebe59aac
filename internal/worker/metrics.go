package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJobName = "loadtest_dispatcher"

// Metrics метрики диспетчера в собственном реестре.
// Сервер регистрирует реестр в /metrics, CLI может отправить его в Pushgateway.
type Metrics struct {
	Registry *prometheus.Registry

	tasksTotal   *prometheus.CounterVec
	sendsTotal   *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	taskDuration prometheus.Histogram
	inFlight     prometheus.Gauge
}

// NewMetrics создает реестр и метрики диспетчера.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_tasks_total",
				Help: "Total number of dispatched tasks, partitioned by outcome.",
			},
			[]string{"outcome"}, // success | failure | dropped
		),
		sendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_sends_total",
				Help: "Total number of send attempts, partitioned by status.",
			},
			[]string{"status"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadtest_runs_total",
				Help: "Total number of runs, partitioned by final status.",
			},
			[]string{"status"}, // completed | cancelled | invalid
		),
		taskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "loadtest_task_duration_seconds",
				Help:    "Histogram of task durations (generation, grading and send).",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "loadtest_tasks_in_flight",
				Help: "Number of tasks currently inside external calls.",
			},
		),
	}
}

func (m *Metrics) taskSettled(failure bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if failure {
		outcome = "failure"
	}
	m.tasksTotal.WithLabelValues(outcome).Inc()
	m.taskDuration.Observe(d.Seconds())
}

func (m *Metrics) taskDropped() {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues("dropped").Inc()
}

func (m *Metrics) sendAttempted(success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.sendsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) runFinished(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) taskStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) taskDone() {
	if m != nil {
		m.inFlight.Dec()
	}
}

// Push отправляет метрики реестра в Pushgateway.
func (m *Metrics) Push(ctx context.Context, pushgatewayURL string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	pusher := push.New(pushgatewayURL, pushJobName).Gatherer(m.Registry).Grouping("instance", instanceID)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", pushgatewayURL, err)
	}
	return nil
}
