package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveTasks      prometheus.Gauge
	TaskSubmissions  *prometheus.CounterVec
	TaskPolls        *prometheus.CounterVec
	TaskTransitions  *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	AssetActions     *prometheus.CounterVec
	AutosaveSaves    *prometheus.CounterVec
	AutosaveStatus   *prometheus.GaugeVec
	ExecutorFailover *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec

	durations *taskWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tasks",
			Help:      "Number of tasks currently being polled.",
		}),
		TaskSubmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_submissions_total",
			Help:      "Task submissions by type and outcome.",
		}, []string{"type", "outcome"}),
		TaskPolls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_polls_total",
			Help:      "Status polls by outcome (ok, error, rejected, abandoned).",
		}, []string{"outcome"}),
		TaskTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Observed task status transitions by type and new status.",
		}, []string{"type", "status"}),
		TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time from queueing to terminal status, by task type.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"type"}),
		AssetActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_actions_total",
			Help:      "Reducer actions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		AutosaveSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosave_saves_total",
			Help:      "Autosave attempts by outcome.",
		}, []string{"outcome"}),
		AutosaveStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "autosave_status",
			Help:      "1 for the current autosave status, 0 otherwise.",
		}, []string{"status"}),
		ExecutorFailover: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_failover_total",
			Help:      "Executor backends skipped after a failure.",
		}, []string{"backend"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		durations: newTaskWindow(256),
	}
}

func (m *Metrics) ObserveSubmission(taskType string, err error) {
	if m == nil {
		return
	}
	m.TaskSubmissions.WithLabelValues(taskType, outcome(err)).Inc()
}

func (m *Metrics) ObservePoll(result string) {
	if m == nil {
		return
	}
	m.TaskPolls.WithLabelValues(result).Inc()
	if result != "ok" {
		m.durations.ObserveIndicator("poll_" + result)
	}
}

func (m *Metrics) ObserveTransition(taskType, status string) {
	if m == nil {
		return
	}
	m.TaskTransitions.WithLabelValues(taskType, status).Inc()
}

// ObserveTaskDuration records queue-to-terminal time for a finished task.
func (m *Metrics) ObserveTaskDuration(taskType string, d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.TaskDuration.WithLabelValues(taskType).Observe(d.Seconds())
	m.durations.Observe(taskType, float64(d.Milliseconds()))
}

func (m *Metrics) SetActiveTasks(n int) {
	if m == nil {
		return
	}
	m.ActiveTasks.Set(float64(n))
}

func (m *Metrics) ObserveAssetAction(kind string, err error) {
	if m == nil {
		return
	}
	m.AssetActions.WithLabelValues(kind, outcome(err)).Inc()
}

func (m *Metrics) ObserveAutosave(err error) {
	if m == nil {
		return
	}
	m.AutosaveSaves.WithLabelValues(outcome(err)).Inc()
}

// SetAutosaveStatus flips the status gauge so exactly one label reads 1.
func (m *Metrics) SetAutosaveStatus(status string) {
	if m == nil {
		return
	}
	for _, s := range []string{"idle", "saving", "saved", "error"} {
		v := 0.0
		if s == status {
			v = 1
		}
		m.AutosaveStatus.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ObserveFailover(backend string) {
	if m == nil {
		return
	}
	m.ExecutorFailover.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// TaskStats returns rolling completion-time statistics per task type.
func (m *Metrics) TaskStats() TaskDurationSnapshot {
	if m == nil {
		return newTaskWindow(0).Snapshot()
	}
	return m.durations.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
