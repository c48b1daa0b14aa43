// Package opsserver Prometheus 指标导出
package opsserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 包含任务编排层的全部指标
type Metrics struct {
	// 任务提交指标
	TasksSubmitted *prometheus.CounterVec
	JobsRetried    *prometheus.CounterVec

	// 保护机制指标
	LimiterDenials    prometheus.Counter
	BreakerRejections *prometheus.CounterVec
	BreakerResets     *prometheus.CounterVec

	// 进度推送指标
	ProgressPublished prometheus.Counter
	ProgressClients   prometheus.Gauge

	// HTTP 指标
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics 创建指标实例
//
// reg 为 nil 时注册到默认注册表；测试传入独立 Registry
// 避免多实例重复注册。
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_submitted_total",
				Help:      "Total tasks submitted by queue",
			},
			[]string{"queue"},
		),
		JobsRetried: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_retried_total",
				Help:      "Total failed jobs re-enqueued by queue",
			},
			[]string{"queue"},
		),
		LimiterDenials: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "limiter_denials_total",
				Help:      "Total submissions rejected by the per-user concurrency limit",
			},
		),
		BreakerRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_rejections_total",
				Help:      "Total submissions rejected because the provider circuit is open",
			},
			[]string{"provider"},
		),
		BreakerResets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_resets_total",
				Help:      "Total manual circuit breaker resets",
			},
			[]string{"provider"},
		),
		ProgressPublished: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "progress_published_total",
				Help:      "Total progress updates published",
			},
		),
		ProgressClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "progress_ws_clients",
				Help:      "Number of connected progress WebSocket clients",
			},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "path"},
		),
	}
}

// MetricsHandler 返回 Prometheus 指标导出处理器
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
