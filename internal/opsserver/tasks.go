package opsserver

import (
	"encoding/json"
	"net/http"
	"time"

	"ai-tasks/internal/shared/pubsub"
	"ai-tasks/internal/shared/queue"
)

// CreateTaskRequest 任务提交请求体
type CreateTaskRequest struct {
	UserID         string          `json:"userId"`
	ToolID         string          `json:"toolId"`
	ToolSlug       string          `json:"toolSlug"`
	Queue          string          `json:"queue,omitempty"`
	Priority       int             `json:"priority,omitempty"`
	InputParams    json.RawMessage `json:"inputParams"`
	ToolConfig     json.RawMessage `json:"toolConfig,omitempty"`
	PriceConfig    json.RawMessage `json:"priceConfig,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	DelaySeconds   int             `json:"delaySeconds,omitempty"`
	TimeoutSeconds int             `json:"timeoutSeconds,omitempty"`
}

// CreateTaskResponse 任务提交响应体
type CreateTaskResponse struct {
	TaskID     string `json:"taskId"`
	Queue      string `json:"queue"`
	Status     string `json:"status"`
	Duplicated bool   `json:"duplicated,omitempty"`
}

// CreateTask 提交任务
//
// 路由: POST /api/v1/tasks
//
// 提交流程（顺序有意义，见各步骤注释）：
//  1. 熔断预检：目标提供商熔断开启时直接返回 503，
//     不让注定失败的任务进入队列
//  2. 并发限制：用户在途任务达到上限时返回 429
//  3. 幂等检查：携带 idempotencyKey 的重复请求返回原 taskId
//  4. 入队，然后递增并发计数、记录幂等键
//  5. 发布 pending 进度（fire-and-forget）
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if len(req.InputParams) == 0 {
		writeError(w, http.StatusBadRequest, "inputParams is required")
		return
	}

	ctx := r.Context()
	log := h.logger.WithContext(ctx).WithUserID(req.UserID)

	// 熔断预检：按提供商 slug 判定，未指定提供商的任务不预检
	if req.ToolSlug != "" {
		ok, err := h.infra.Breaker.CanExecute(ctx, req.ToolSlug)
		if err != nil {
			log.WithError(err).Error("circuit breaker check failed")
			writeError(w, http.StatusInternalServerError, "failed to check provider availability")
			return
		}
		if !ok {
			h.metrics.BreakerRejections.WithLabelValues(req.ToolSlug).Inc()
			writeError(w, http.StatusServiceUnavailable, "service temporarily degraded, please retry later")
			return
		}
	}

	// 并发限制：读检查在前，实际递增在入队成功之后
	status, err := h.infra.Limiter.Check(ctx, req.UserID, int64(h.cfg.Limiter.MaxConcurrent))
	if err != nil {
		log.WithError(err).Error("concurrency check failed")
		writeError(w, http.StatusInternalServerError, "failed to check concurrency limit")
		return
	}
	if !status.Allowed {
		h.metrics.LimiterDenials.Inc()
		writeError(w, http.StatusTooManyRequests, "too many concurrent tasks, please wait for running tasks to finish")
		return
	}

	// 幂等检查：命中时返回原任务，不重复创建
	if req.IdempotencyKey != "" {
		rec, err := h.infra.Idempotency.Check(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			log.WithError(err).Error("idempotency check failed")
			writeError(w, http.StatusInternalServerError, "failed to check idempotency")
			return
		}
		if rec.Exists {
			log.WithTaskID(rec.TaskID).Info("duplicate submission, returning existing task")
			writeJSON(w, http.StatusOK, CreateTaskResponse{
				TaskID:     rec.TaskID,
				Queue:      h.resolveQueueBase(&req),
				Status:     "pending",
				Duplicated: true,
			})
			return
		}
	}

	base := h.resolveQueueBase(&req)
	q, err := h.infra.Queue.Get(ctx, base)
	if err != nil {
		log.WithError(err).Error("failed to open queue")
		writeError(w, http.StatusInternalServerError, "failed to open queue")
		return
	}

	job := &queue.Job{
		TaskID:         generateTaskID(),
		UserID:         req.UserID,
		ToolID:         req.ToolID,
		ToolSlug:       req.ToolSlug,
		PriceConfig:    req.PriceConfig,
		ToolConfig:     req.ToolConfig,
		InputParams:    req.InputParams,
		Priority:       req.Priority,
		IdempotencyKey: req.IdempotencyKey,
		RequestID:      req.RequestID,
		Timeout:        time.Duration(req.TimeoutSeconds) * time.Second,
		Delay:          time.Duration(req.DelaySeconds) * time.Second,
	}

	taskID, err := q.Submit(ctx, job)
	if err != nil {
		log.WithError(err).WithQueue(q.Name()).Error("failed to submit task")
		writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	if _, err := h.infra.Limiter.Increment(ctx, req.UserID); err != nil {
		// 计数递增失败不回滚任务：宁可短暂放宽限制，也不丢已入队的任务
		log.WithError(err).Warn("failed to increment concurrency counter")
	}

	if req.IdempotencyKey != "" {
		if err := h.infra.Idempotency.Set(ctx, req.UserID, req.IdempotencyKey, taskID); err != nil {
			log.WithError(err).Warn("failed to record idempotency key")
		}
	}

	// pending 进度是 fire-and-forget：发布失败不影响提交结果
	if err := h.infra.Progress.Publish(ctx, &pubsub.TaskUpdateMessage{
		TaskID:   taskID,
		UserID:   req.UserID,
		Status:   pubsub.StatusPending,
		Progress: 0,
		Message:  "task submitted",
	}); err != nil {
		log.WithError(err).Warn("failed to publish pending progress")
	} else {
		h.metrics.ProgressPublished.Inc()
	}

	h.metrics.TasksSubmitted.WithLabelValues(q.Name()).Inc()
	log.JobLog("submitted", q.Name(), taskID)

	writeJSON(w, http.StatusAccepted, CreateTaskResponse{
		TaskID: taskID,
		Queue:  base,
		Status: "pending",
	})
}

// resolveQueueBase 任务路由：显式队列 > 提供商 slug > 默认队列
func (h *Handler) resolveQueueBase(req *CreateTaskRequest) string {
	if req.Queue != "" {
		return req.Queue
	}
	if req.ToolSlug != "" {
		return req.ToolSlug
	}
	return queue.DefaultQueue
}

// GetTask 查询单个任务快照
//
// 路由: GET /api/v1/tasks/{id}
//
// 查询参数：
//   - queue: 任务所在队列基础名（可选）；未指定时扫描全部队列
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	ctx := r.Context()

	if base := r.URL.Query().Get("queue"); base != "" {
		q, err := h.infra.Queue.Get(ctx, base)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to open queue")
			return
		}
		snap, err := q.Get(ctx, taskID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get task")
			return
		}
		if snap == nil {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	snap, err := h.findTask(r, taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// findTask 跨队列查找任务（运维路径，O(队列数) 次 broker 往返）
func (h *Handler) findTask(r *http.Request, taskID string) (*queue.JobSnapshot, error) {
	ctx := r.Context()
	names, err := h.infra.Queue.Discover(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		q, err := h.infra.Queue.Get(ctx, queue.BaseFromResolved(h.cfg.Queue.Prefix, name))
		if err != nil {
			return nil, err
		}
		snap, err := q.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			return snap, nil
		}
	}
	return nil, nil
}
