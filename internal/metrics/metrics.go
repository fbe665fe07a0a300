package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiusage_source_fetch_total",
			Help: "Source fetch attempts by outcome",
		},
		[]string{"source", "outcome"},
	)
	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiusage_aggregator_runs_total",
			Help: "Aggregator runs by outcome",
		},
		[]string{"outcome"},
	)
	categoryPercentage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aiusage_category_percentage",
			Help: "Latest normalized percentage per category",
		},
		[]string{"category"},
	)
	lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aiusage_last_success_timestamp_seconds",
			Help: "Unix time of the last successful document write",
		},
	)

	registerOnce sync.Once
)

// Register 把指标注册到默认 registry，重复调用无副作用
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sourceFetches, runs, categoryPercentage, lastSuccess)
	})
}

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

func ObserveFetch(source string, ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFailed
	}
	sourceFetches.WithLabelValues(source, outcome).Inc()
}

func ObserveRun(ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFailed
	}
	runs.WithLabelValues(outcome).Inc()
}

// SetPercentages 按分类名更新最新百分比
func SetPercentages(names []string, percentages []int, unix float64) {
	for i, name := range names {
		if i >= len(percentages) {
			break
		}
		categoryPercentage.WithLabelValues(name).Set(float64(percentages[i]))
	}
	lastSuccess.Set(unix)
}
