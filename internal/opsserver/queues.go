package opsserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ai-tasks/internal/shared/queue"
)

// QueueSummary 队列枚举条目
type QueueSummary struct {
	Name   string                   `json:"name"`
	Counts map[queue.JobState]int64 `json:"counts"`
}

// ListQueues 枚举全部逻辑队列及各状态任务计数
//
// 路由: GET /api/v1/queues
//
// 队列列表来自 broker 键空间的元数据标记扫描，
// 租户前缀的队列排在最前，其余按字典序。
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names, err := h.infra.Queue.Discover(ctx)
	if err != nil {
		h.logger.WithError(err).Error("failed to discover queues")
		writeError(w, http.StatusInternalServerError, "failed to discover queues")
		return
	}

	summaries := make([]QueueSummary, 0, len(names))
	for _, name := range names {
		q, err := h.infra.Queue.Get(ctx, queue.BaseFromResolved(h.cfg.Queue.Prefix, name))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to open queue")
			return
		}
		counts, err := q.Counts(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to count jobs")
			return
		}
		summaries = append(summaries, QueueSummary{Name: name, Counts: counts})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queues": summaries,
		"total":  len(summaries),
	})
}

// QueueCounts 单个队列各状态任务计数
//
// 路由: GET /api/v1/queues/{name}/counts
func (h *Handler) QueueCounts(w http.ResponseWriter, r *http.Request) {
	q, ok := h.openQueue(w, r)
	if !ok {
		return
	}

	counts, err := q.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ListQueueJobs 按状态分页列出队列任务
//
// 路由: GET /api/v1/queues/{name}/jobs
//
// 查询参数：
//   - state: 任务状态（可选，多个用逗号分隔；缺省为全部状态）
//   - start/end: 分页区间（缺省 0-49）
func (h *Handler) ListQueueJobs(w http.ResponseWriter, r *http.Request) {
	q, ok := h.openQueue(w, r)
	if !ok {
		return
	}

	states := parseStates(r.URL.Query().Get("state"))
	start := parseInt64(r.URL.Query().Get("start"), 0)
	end := parseInt64(r.URL.Query().Get("end"), 49)

	jobs, err := q.ListJobs(r.Context(), states, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue": q.Name(),
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetQueueJob 查询队列中单个任务快照
//
// 路由: GET /api/v1/queues/{name}/jobs/{id}
func (h *Handler) GetQueueJob(w http.ResponseWriter, r *http.Request) {
	q, ok := h.openQueue(w, r)
	if !ok {
		return
	}

	snap, err := q.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RetryJob 将失败任务重新入队
//
// 路由: POST /api/v1/queues/{name}/jobs/{id}/retry
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	q, ok := h.openQueue(w, r)
	if !ok {
		return
	}

	taskID := r.PathValue("id")
	retried, err := q.Retry(r.Context(), taskID)
	if err != nil {
		h.logger.WithError(err).WithTaskID(taskID).Error("failed to retry job")
		writeError(w, http.StatusInternalServerError, "failed to retry job")
		return
	}
	if !retried {
		writeError(w, http.StatusNotFound, "job not found in failed set")
		return
	}

	h.metrics.JobsRetried.WithLabelValues(q.Name()).Inc()
	h.logger.JobLog("retried", q.Name(), taskID)
	writeJSON(w, http.StatusOK, map[string]string{"taskId": taskID, "status": "waiting"})
}

// RemoveJob 删除任意状态的任务
//
// 路由: DELETE /api/v1/queues/{name}/jobs/{id}
func (h *Handler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	q, ok := h.openQueue(w, r)
	if !ok {
		return
	}

	taskID := r.PathValue("id")
	removed, err := q.Remove(r.Context(), taskID)
	if err != nil {
		h.logger.WithError(err).WithTaskID(taskID).Error("failed to remove job")
		writeError(w, http.StatusInternalServerError, "failed to remove job")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	h.logger.JobLog("removed", q.Name(), taskID)
	writeJSON(w, http.StatusOK, map[string]string{"taskId": taskID, "status": "removed"})
}

// CleanQueueRequest 队列清理请求体
type CleanQueueRequest struct {
	State        string `json:"state"`
	GraceSeconds int    `json:"graceSeconds"`
}

// CleanQueue 批量清除早于宽限期的终态任务
//
// 路由: POST /api/v1/queues/{name}/clean
func (h *Handler) CleanQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := h.openQueue(w, r)
	if !ok {
		return
	}

	var req CleanQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.State == "" {
		req.State = string(queue.StateCompleted)
	}

	cleaned, err := q.Clean(r.Context(), time.Duration(req.GraceSeconds)*time.Second, queue.JobState(req.State))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.WithQueue(q.Name()).Info("queue cleaned",
		"state", req.State, "cleaned", cleaned)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue":   q.Name(),
		"state":   req.State,
		"cleaned": cleaned,
	})
}

// openQueue 解析路径中的队列名并打开队列句柄
//
// 路径参数既接受基础名（"default"）也接受带前缀的逻辑名
// （枚举接口返回的是后者，直接回填可用）。
func (h *Handler) openQueue(w http.ResponseWriter, r *http.Request) (queue.JobQueue, bool) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "queue name required")
		return nil, false
	}

	q, err := h.infra.Queue.Get(r.Context(), queue.BaseFromResolved(h.cfg.Queue.Prefix, name))
	if err != nil {
		h.logger.WithError(err).WithQueue(name).Error("failed to open queue")
		writeError(w, http.StatusInternalServerError, "failed to open queue")
		return nil, false
	}
	return q, true
}

// parseStates 解析逗号分隔的状态过滤参数，空值表示全部状态
func parseStates(raw string) []queue.JobState {
	if raw == "" {
		return nil
	}
	var states []queue.JobState
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			states = append(states, queue.JobState(s))
		}
	}
	return states
}

func parseInt64(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
