package opsserver

import (
	"net/http"
)

// GetCircuit 查询提供商熔断记录
//
// 路由: GET /api/v1/providers/{id}/circuit
//
// 返回惰性求值后的当前状态：open 且冷却期已过的记录
// 在此接口上表现为 half-open，与工作进程看到的判定一致。
func (h *Handler) GetCircuit(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("id")

	rec, err := h.infra.Breaker.State(r.Context(), provider)
	if err != nil {
		h.logger.WithError(err).WithProvider(provider).Error("failed to read circuit state")
		writeError(w, http.StatusInternalServerError, "failed to read circuit state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider": provider,
		"circuit":  rec,
	})
}

// ResetCircuit 复位提供商熔断器（运维逃生通道）
//
// 路由: POST /api/v1/providers/{id}/circuit/reset
//
// 清除全部熔断状态，提供商恢复服务但熔断仍开启时使用。
func (h *Handler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("id")

	if err := h.infra.Breaker.Reset(r.Context(), provider); err != nil {
		h.logger.WithError(err).WithProvider(provider).Error("failed to reset circuit")
		writeError(w, http.StatusInternalServerError, "failed to reset circuit")
		return
	}

	h.metrics.BreakerResets.WithLabelValues(provider).Inc()
	h.logger.WithProvider(provider).Info("circuit breaker reset")
	writeJSON(w, http.StatusOK, map[string]string{"provider": provider, "status": "reset"})
}
