// Package queue 任务队列类型定义
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ============================================================================
// 任务类型
// ============================================================================

// JobState 任务状态
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateDelayed   JobState = "delayed"
)

// 优先级分层：数值越小越先被消费
const (
	PriorityUrgent = 1  // 紧急任务
	PriorityHigh   = 5  // Web 用户任务
	PriorityNormal = 10 // 普通任务
	PriorityAdmin  = 15 // 管理后台任务
	PriorityLow    = 20 // 低优先级批量任务
)

// Job 提交到队列的任务载荷（入队线格式）
//
// InputParams/ToolConfig/PriceConfig 在提交时快照，
// 后续配置修改不影响在途任务。
type Job struct {
	TaskID         string          `json:"taskId"`
	UserID         string          `json:"userId"`
	ToolID         string          `json:"toolId"`
	ToolSlug       string          `json:"toolSlug"`
	PriceConfig    json.RawMessage `json:"priceConfig,omitempty"`
	ToolConfig     json.RawMessage `json:"toolConfig,omitempty"`
	InputParams    json.RawMessage `json:"inputParams"`
	Priority       int             `json:"priority"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	Timeout        time.Duration   `json:"timeout,omitempty"`
	Delay          time.Duration   `json:"delay,omitempty"`
}

// Validate 提交前校验（校验失败的任务不触达 broker）
func (j *Job) Validate() error {
	if j.TaskID == "" {
		return fmt.Errorf("job validation: taskId is required")
	}
	if j.UserID == "" {
		return fmt.Errorf("job validation: userId is required")
	}
	if len(j.InputParams) == 0 {
		return fmt.Errorf("job validation: inputParams is required")
	}
	if j.Priority < 0 {
		return fmt.Errorf("job validation: priority must be non-negative")
	}
	if j.Priority == 0 {
		j.Priority = PriorityNormal
	}
	return nil
}

// JobResult 工作进程回写的任务结果
type JobResult struct {
	Success    bool            `json:"success"`
	OutputData json.RawMessage `json:"outputData,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration,omitempty"`
}

// JobSnapshot 任务快照（列表/查询返回）
type JobSnapshot struct {
	TaskID       string     `json:"taskId"`
	Queue        string     `json:"queue"`
	State        JobState   `json:"state"`
	Priority     int        `json:"priority"`
	Progress     int        `json:"progress"`
	Attempts     int        `json:"attempts"`
	Data         *Job       `json:"data,omitempty"`
	Result       *JobResult `json:"result,omitempty"`
	FailedReason string     `json:"failedReason,omitempty"`
	SubmittedAt  time.Time  `json:"submittedAt"`
	StartedAt    time.Time  `json:"startedAt,omitzero"`
	FinishedAt   time.Time  `json:"finishedAt,omitzero"`
}

// ============================================================================
// 队列命名
// ============================================================================

// DefaultQueue 默认队列基础名（非按提供商路由的任务）
const DefaultQueue = "default"

// QueueNameSeparator 前缀分隔符
//
// 使用下划线而非冒号：冒号是 Redis 键命名空间语法，
// 出现在队列逻辑名中会与键前缀冲突。
const QueueNameSeparator = "_"

// ResolveQueueName 解析队列逻辑名
//
// 纯函数：相同的 (prefix, base) 永远得到同一字符串，前缀不会被静默丢弃。
func ResolveQueueName(prefix, base string) string {
	if base == "" {
		base = DefaultQueue
	}
	if prefix == "" {
		return base
	}
	return prefix + QueueNameSeparator + base
}

// ============================================================================
// 保留策略
// ============================================================================

// RetentionPolicy 终态任务保留策略（条数与时长取更严格者）
//
// 短期保留：持久历史在关系型存储中（不在本层），
// broker 侧只留近期窗口供排障。
type RetentionPolicy struct {
	CompletedCount int
	CompletedAge   time.Duration
	FailedCount    int
	FailedAge      time.Duration
}

// DefaultRetention 默认保留策略
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{
		CompletedCount: 100,
		CompletedAge:   3 * 24 * time.Hour,
		FailedCount:    200,
		FailedAge:      7 * 24 * time.Hour,
	}
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// 队列键命名空间
	KeyQueuePrefix = "queue:"
	KeyMetaSuffix  = ":meta"

	// 按状态的子键后缀
	keySeqSuffix       = ":seq"
	keyWaitingSuffix   = ":waiting"
	keyDelayedSuffix   = ":delayed"
	keyActiveSuffix    = ":active"
	keyCompletedSuffix = ":completed"
	keyFailedSuffix    = ":failed"
	keyJobInfix        = ":job:"
)

// KeyMeta 队列元数据标记键（队列发现扫描此标记）
func KeyMeta(name string) string { return KeyQueuePrefix + name + KeyMetaSuffix }

// KeySeq FIFO 序号计数键
func KeySeq(name string) string { return KeyQueuePrefix + name + keySeqSuffix }

// KeyState 按状态的有序集合键
func KeyState(name string, state JobState) string {
	switch state {
	case StateWaiting:
		return KeyQueuePrefix + name + keyWaitingSuffix
	case StateDelayed:
		return KeyQueuePrefix + name + keyDelayedSuffix
	case StateActive:
		return KeyQueuePrefix + name + keyActiveSuffix
	case StateCompleted:
		return KeyQueuePrefix + name + keyCompletedSuffix
	case StateFailed:
		return KeyQueuePrefix + name + keyFailedSuffix
	}
	return KeyQueuePrefix + name + ":" + string(state)
}

// KeyJob 任务数据哈希键
func KeyJob(name, taskID string) string { return KeyQueuePrefix + name + keyJobInfix + taskID }

// QueueNameFromMetaKey 从元数据标记键还原队列逻辑名
func QueueNameFromMetaKey(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyQueuePrefix) || !strings.HasSuffix(key, KeyMetaSuffix) {
		return "", false
	}
	name := key[len(KeyQueuePrefix) : len(key)-len(KeyMetaSuffix)]
	if name == "" {
		return "", false
	}
	return name, true
}

// ============================================================================
// 优先级评分
// ============================================================================

// seqBits 序号位宽；同一优先级层内按提交顺序 FIFO
const seqBits = 40

// EncodeScore 编码等待集合评分：高位优先级、低位 FIFO 序号
//
// 评分落在 float64 精确整数范围内（priority ≤ 2^13，seq < 2^40）。
func EncodeScore(priority int, seq int64) float64 {
	return float64(int64(priority)<<seqBits | (seq & (1<<seqBits - 1)))
}

// DecodePriority 从评分还原优先级层
func DecodePriority(score float64) int {
	return int(int64(score) >> seqBits)
}

// BaseFromResolved 从带前缀的逻辑名还原基础名（ResolveQueueName 的逆）
//
// 名称不带该前缀时原样返回（前缀为空或跨租户枚举的场景）。
func BaseFromResolved(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if strings.HasPrefix(name, prefix+QueueNameSeparator) {
		return name[len(prefix)+len(QueueNameSeparator):]
	}
	return name
}

// SortQueueNames 排序发现的队列名：租户前缀的排最前，其余按字典序
func SortQueueNames(names []string, tenant string) {
	tenantPrefix := tenant + QueueNameSeparator
	sort.Slice(names, func(i, j int) bool {
		it := strings.HasPrefix(names[i], tenantPrefix)
		jt := strings.HasPrefix(names[j], tenantPrefix)
		if it != jt {
			return it
		}
		return names[i] < names[j]
	})
}
