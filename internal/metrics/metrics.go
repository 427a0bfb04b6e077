package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_resolve_total",
		Help: "Index-only deliverability checks by outcome and path",
	}, []string{"result", "path"})
	ResolveErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_resolve_errors_total",
		Help: "Catalog or index errors degraded to not deliverable",
	})
	ResolveDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_resolve_duration_ms",
		Help:    "Index-only deliverability check duration in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100, 200},
	})
	NearestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_nearest_total",
		Help: "Nearest source lookups by outcome",
	}, []string{"result"})
	NearestCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_nearest_cache_hits_total",
		Help: "Nearest source redis cache hits",
	})
	NearestCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_nearest_cache_misses_total",
		Help: "Nearest source redis cache misses",
	})
	PrecomputeRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_precompute_runs_total",
		Help: "Precomputation runs by final status",
	}, []string{"status"})
	PrecomputeRowsWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_precompute_rows_written_total",
		Help: "Index rows upserted by precomputation",
	})
	PrecomputeRowsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_precompute_rows_swept_total",
		Help: "Index rows hard-deleted in the sweep phase",
	})
	PrecomputeUnitFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_precompute_unit_failures_total",
		Help: "Batch or batch/source units skipped after an error",
	})
	PrecomputeDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_precompute_duration_seconds",
		Help:    "Wall time of a precomputation run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})
	PrecomputeLastSuccessUnix = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stock_precompute_last_success_unixtime",
		Help: "Finish time of the last successful precomputation",
	})
)

func init() {
	prometheus.MustRegister(ResolveTotal)
	prometheus.MustRegister(ResolveErrorsTotal)
	prometheus.MustRegister(ResolveDurationMs)
	prometheus.MustRegister(NearestTotal)
	prometheus.MustRegister(NearestCacheHitsTotal)
	prometheus.MustRegister(NearestCacheMissesTotal)
	prometheus.MustRegister(PrecomputeRunsTotal)
	prometheus.MustRegister(PrecomputeRowsWrittenTotal)
	prometheus.MustRegister(PrecomputeRowsSweptTotal)
	prometheus.MustRegister(PrecomputeUnitFailuresTotal)
	prometheus.MustRegister(PrecomputeDurationSeconds)
	prometheus.MustRegister(PrecomputeLastSuccessUnix)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标供 Prometheus 抓取；在主入口挂载到 API 前缀下。
func Handler() http.Handler { return promhttp.Handler() }
