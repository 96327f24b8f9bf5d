package simulation

import (
	"time"

	"github.com/annel0/minesim/internal/classify"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - Prometheus-метрики симуляции.
//
// Метрики:
// * minesim_runs_total{technique,status} - counter
// * minesim_run_duration_seconds{technique} - histogram
// * minesim_blocks_sampled_total - counter
// * minesim_ore_blocks_total{category} - counter
// * minesim_lava_blocks_total - counter
// * minesim_runs_active - gauge
// * minesim_jobs_queued - gauge
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sampled  prometheus.Counter
	ores     *prometheus.CounterVec
	lava     prometheus.Counter
	active   prometheus.Gauge
	queued   prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg. При reg == nil метрики
// работают, но никуда не экспортируются (удобно в тестах).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minesim",
			Name:      "runs_total",
			Help:      "Завершённые запуски схем по исходу.",
		}, []string{"technique", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "minesim",
			Name:      "run_duration_seconds",
			Help:      "Длительность одного запуска схемы.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"technique"}),
		sampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minesim",
			Name:      "blocks_sampled_total",
			Help:      "Блоков, опрошенных генераторами схем.",
		}),
		ores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minesim",
			Name:      "ore_blocks_total",
			Help:      "Найденные блоки руды по категориям.",
		}, []string{"category"}),
		lava: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minesim",
			Name:      "lava_blocks_total",
			Help:      "Блоков лавы среди посещённых.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minesim",
			Name:      "runs_active",
			Help:      "Запуски, выполняющиеся прямо сейчас.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minesim",
			Name:      "jobs_queued",
			Help:      "Задачи, ожидающие свободного воркера.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.sampled, m.ores, m.lava, m.active, m.queued)
	}
	return m
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) runFinished(technique string, sampled int, row ResultRow, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.active.Dec()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(technique, status).Inc()
	m.duration.WithLabelValues(technique).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	m.sampled.Add(float64(sampled))
	m.lava.Add(float64(row.Lava))
	for i, n := range row.Ores {
		if n > 0 {
			m.ores.WithLabelValues(classify.Categories[i]).Add(float64(n))
		}
	}
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}
