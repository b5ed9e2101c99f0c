// Package metrics records gate outcomes as Prometheus gauges and writes them
// in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dkoosis/buildgate/pkg/coverage"
	"github.com/dkoosis/buildgate/pkg/partition"
)

const (
	MetricsNamespace = "buildgate"
)

// Recorder owns a private registry so repeated runs in one process never
// collide on the default registerer.
type Recorder struct {
	reg   *prometheus.Registry
	runID string

	runInfo         *prometheus.GaugeVec
	testsTotal      *prometheus.GaugeVec
	groupDuration   *prometheus.GaugeVec
	coverageRatio   *prometheus.GaugeVec
	coverageMinimum *prometheus.GaugeVec
	coverageUnits   *prometheus.GaugeVec
	excludedFiles   prometheus.Gauge
	gatePassed      prometheus.Gauge
	stageDuration   *prometheus.GaugeVec
	stageStatus     *prometheus.GaugeVec
}

// NewRecorder creates a Recorder whose series carry runID.
func NewRecorder(runID string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{reg: reg, runID: runID}
	r.runInfo = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_info",
		Help:      "Information about the gate run",
	}, []string{"run_id"})
	r.testsTotal = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "tests",
		Help:      "Number of tests per group and outcome",
	}, []string{"run_id", "group", "outcome"})
	r.groupDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "group_duration_seconds",
		Help:      "Wall-clock duration of a test group",
	}, []string{"run_id", "group"})
	r.coverageRatio = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_ratio",
		Help:      "Aggregated covered/total ratio per metric",
	}, []string{"run_id", "metric"})
	r.coverageMinimum = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_minimum_ratio",
		Help:      "Configured minimum ratio per metric",
	}, []string{"run_id", "metric"})
	r.coverageUnits = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_units",
		Help:      "Aggregated coverage units per metric and state",
	}, []string{"run_id", "metric", "state"})
	r.excludedFiles = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_excluded_files",
		Help:      "Number of records removed by exclusion patterns",
	})
	r.gatePassed = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "coverage_gate_passed",
		Help:      "1 when every coverage rule held, 0 otherwise",
	})
	r.stageDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of a pipeline stage",
	}, []string{"run_id", "stage"})
	r.stageStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "stage_status",
		Help:      "1 for the status a pipeline stage finished with",
	}, []string{"run_id", "stage", "status"})

	r.runInfo.WithLabelValues(runID).Set(1)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// RecordGroup records the outcome counts of a test group.
func (r *Recorder) RecordGroup(g partition.Group, passed, failed, skipped int, d time.Duration) {
	group := string(g)
	r.testsTotal.WithLabelValues(r.runID, group, string(partition.OutcomePassed)).Set(float64(passed))
	r.testsTotal.WithLabelValues(r.runID, group, string(partition.OutcomeFailed)).Set(float64(failed))
	r.testsTotal.WithLabelValues(r.runID, group, string(partition.OutcomeSkipped)).Set(float64(skipped))
	r.groupDuration.WithLabelValues(r.runID, group).Set(d.Seconds())
}

// RecordVerdict records per-rule ratios and the overall gate outcome.
// Vacuous rules report a ratio of 1.
func (r *Recorder) RecordVerdict(v coverage.Verdict) {
	for _, res := range v.Results {
		metric := string(res.Rule.Metric)
		ratio := res.Actual
		if res.Vacuous {
			ratio = 1
		}
		r.coverageRatio.WithLabelValues(r.runID, metric).Set(ratio)
		r.coverageMinimum.WithLabelValues(r.runID, metric).Set(res.Rule.Minimum)
		r.coverageUnits.WithLabelValues(r.runID, metric, "covered").Set(float64(res.Counter.Covered))
		r.coverageUnits.WithLabelValues(r.runID, metric, "missed").Set(float64(res.Counter.Missed()))
	}
	r.excludedFiles.Set(float64(len(v.Excluded)))
	if v.Passed() {
		r.gatePassed.Set(1)
	} else {
		r.gatePassed.Set(0)
	}
}

// RecordStage records how a pipeline stage finished.
func (r *Recorder) RecordStage(name, status string, d time.Duration) {
	r.stageDuration.WithLabelValues(r.runID, name).Set(d.Seconds())
	r.stageStatus.WithLabelValues(r.runID, name, status).Set(1)
}

// WriteTextfile atomically writes every recorded series to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
