package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	taskDuration     *prom.HistogramVec
	pipelineDuration *prom.HistogramVec
	taskResults      *prom.CounterVec
	pipelineOutcome  *prom.CounterVec
	cacheLookups     *prom.CounterVec
	deploys          *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "siteforge",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual pipeline tasks",
			Buckets:   prom.DefBuckets,
		}, []string{"task"})
		pr.pipelineDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "siteforge",
			Name:      "pipeline_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.DefBuckets,
		}, []string{"pipeline"})
		pr.taskResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteforge",
			Name:      "task_results_total",
			Help:      "Task result counts by outcome",
		}, []string{"task", "result"})
		pr.pipelineOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteforge",
			Name:      "pipeline_outcomes_total",
			Help:      "Pipeline outcomes by final status",
		}, []string{"pipeline", "outcome"})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteforge",
			Name:      "change_cache_lookups_total",
			Help:      "Change-detection cache lookups by hit/miss",
		}, []string{"result"})
		pr.deploys = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteforge",
			Name:      "deploys_total",
			Help:      "Deploy invocations by environment and result",
		}, []string{"environment", "result"})
		reg.MustRegister(pr.taskDuration, pr.pipelineDuration, pr.taskResults, pr.pipelineOutcome, pr.cacheLookups, pr.deploys)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePipelineDuration(pipeline string, d time.Duration) {
	if p == nil || p.pipelineDuration == nil {
		return
	}
	p.pipelineDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil || p.taskResults == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPipelineOutcome(pipeline, outcome string) {
	if p == nil || p.pipelineOutcome == nil {
		return
	}
	p.pipelineOutcome.WithLabelValues(pipeline, outcome).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncDeploy(environment string, success bool) {
	if p == nil || p.deploys == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.deploys.WithLabelValues(environment, res).Inc()
}
