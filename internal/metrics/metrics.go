package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

const namespace = "gradscrape"

// Recorder exports coordination telemetry through a private Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	gateRejected  *prometheus.CounterVec
	gateBusy      prometheus.Gauge
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	reconciled    *prometheus.CounterVec
	rejected      prometheus.Counter
	analysis      *prometheus.CounterVec
	lastRunFinish prometheus.Gauge
}

var _ ports.Metrics = (*Recorder)(nil)

// New registers every collector on a fresh registry, alongside the Go and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		gateRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Triggers refused because another run held the busy gate.",
		}, []string{"operation"}),
		gateBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_busy",
			Help:      "1 while an ingestion run or analysis refresh holds the gate.",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_total",
			Help:      "Finished ingestion runs by terminal status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		reconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_reconciled_total",
			Help:      "Loader decisions per candidate record.",
		}, []string{"decision"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Scraped entries dropped by cleaning.",
		}),
		analysis: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_refreshes_total",
			Help:      "Analysis refresh attempts by result.",
		}, []string{"status"}),
		lastRunFinish: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingestion_last_finished_timestamp_seconds",
			Help:      "Unix time the last ingestion run finished.",
		}),
	}
}

// Registry exposes the gatherer for the /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) GateRejected(operation string) {
	r.gateRejected.WithLabelValues(operation).Inc()
}

func (r *Recorder) GateBusy(busy bool) {
	if busy {
		r.gateBusy.Set(1)
		return
	}
	r.gateBusy.Set(0)
}

func (r *Recorder) RunFinished(status domain.RunStatus, elapsed time.Duration) {
	r.runs.WithLabelValues(string(status)).Inc()
	r.runDuration.Observe(elapsed.Seconds())
	r.lastRunFinish.SetToCurrentTime()
}

func (r *Recorder) RecordsReconciled(result domain.LoadResult) {
	r.reconciled.WithLabelValues("inserted").Add(float64(result.Inserted))
	r.reconciled.WithLabelValues("updated").Add(float64(result.Updated))
	r.reconciled.WithLabelValues("skipped").Add(float64(result.Skipped))
	r.reconciled.WithLabelValues("failed").Add(float64(result.Failed))
	r.reconciled.WithLabelValues("conflict").Add(float64(result.Conflicts))
}

func (r *Recorder) RecordsRejected(n int) {
	r.rejected.Add(float64(n))
}

func (r *Recorder) AnalysisRefreshed(status string) {
	r.analysis.WithLabelValues(status).Inc()
}
