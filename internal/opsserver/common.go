// Package opsserver 提供任务编排层的 HTTP 运维与提交接口
//
// 本包实现任务提交入口与运维观测面，包括：
//   - 任务提交（含并发限制、幂等去重、熔断预检）
//   - 队列巡检（枚举、计数、任务列表、重试/删除/清理）
//   - 熔断器查询与复位
//   - WebSocket 实时进度推送
//
// 文件组织：
//   - common.go: 通用工具函数和 Handler 定义
//   - tasks.go: 任务提交与查询接口
//   - queues.go: 队列运维接口
//   - circuit.go: 熔断器运维接口
//   - progress_ws.go: WebSocket 进度网关
//   - metrics_prometheus.go: Prometheus 指标
package opsserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ai-tasks/internal/config"
	"ai-tasks/internal/shared/infra"
	"ai-tasks/pkg/logging"
)

// Handler HTTP 处理器
//
// Handler 是全部 HTTP 接口的入口，负责：
//   - 路由请求到对应的处理函数
//   - 持有基础设施聚合（队列、熔断、限流、幂等、进度）
//   - 协调进度网关和指标上报
type Handler struct {
	infra   *infra.Infrastructure // 基础设施聚合
	cfg     *config.Config        // 应用配置
	gateway *ProgressGateway      // WebSocket 进度网关
	metrics *Metrics              // Prometheus 指标
	logger  *logging.Logger
}

// NewHandler 创建 Handler 实例
func NewHandler(inf *infra.Infrastructure, cfg *config.Config) *Handler {
	return newHandler(inf, cfg, nil)
}

func newHandler(inf *infra.Infrastructure, cfg *config.Config, reg prometheus.Registerer) *Handler {
	h := &Handler{
		infra:   inf,
		cfg:     cfg,
		logger:  logging.Default("opsserver"),
		metrics: NewMetrics("ai_tasks", reg),
	}
	h.gateway = NewProgressGateway(inf.Progress, h.metrics)
	return h
}

// Router 构建 HTTP 路由
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 任务提交与查询
	mux.HandleFunc("POST /api/v1/tasks", h.CreateTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.GetTask)

	// 队列运维
	mux.HandleFunc("GET /api/v1/queues", h.ListQueues)
	mux.HandleFunc("GET /api/v1/queues/{name}/counts", h.QueueCounts)
	mux.HandleFunc("GET /api/v1/queues/{name}/jobs", h.ListQueueJobs)
	mux.HandleFunc("GET /api/v1/queues/{name}/jobs/{id}", h.GetQueueJob)
	mux.HandleFunc("POST /api/v1/queues/{name}/jobs/{id}/retry", h.RetryJob)
	mux.HandleFunc("DELETE /api/v1/queues/{name}/jobs/{id}", h.RemoveJob)
	mux.HandleFunc("POST /api/v1/queues/{name}/clean", h.CleanQueue)

	// 熔断器运维
	mux.HandleFunc("GET /api/v1/providers/{id}/circuit", h.GetCircuit)
	mux.HandleFunc("POST /api/v1/providers/{id}/circuit/reset", h.ResetCircuit)

	// WebSocket 进度推送
	mux.HandleFunc("GET /ws/progress", h.gateway.HandleWebSocket)

	// 运维端点
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("GET /health", h.Health)

	return h.withObservability(mux)
}

// withObservability 请求耗时指标与访问日志
//
// WebSocket 路径不包装：升级需要底层连接劫持（http.Hijacker），
// 包装后的 ResponseWriter 会丢失该能力。
func (h *Handler) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		h.metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path).Observe(elapsed.Seconds())
		h.logger.HTTPRequestLog(r.Method, r.URL.Path, rec.status, elapsed, r.RemoteAddr)
	})
}

// statusRecorder 捕获响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// generateTaskID 生成带前缀的唯一任务标识符
//
// 使用加密安全的随机数生成 6 字节（12 个十六进制字符）的 ID，
// 格式为：task-xxxxxxxxxxxx
func generateTaskID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "task-" + hex.EncodeToString(b)
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
