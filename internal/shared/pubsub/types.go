// Package pubsub 进度消息类型定义
package pubsub

import (
	"encoding/json"
	"time"
)

// UpdateStatus 进度消息状态
type UpdateStatus string

const (
	StatusPending    UpdateStatus = "pending"
	StatusProcessing UpdateStatus = "processing"
	StatusSuccess    UpdateStatus = "success"
	StatusFailed     UpdateStatus = "failed"
)

// TaskUpdateMessage 任务进度消息（瞬态，不持久化）
type TaskUpdateMessage struct {
	TaskID     string          `json:"taskId"`
	UserID     string          `json:"userId"`
	Status     UpdateStatus    `json:"status"`
	Progress   int             `json:"progress"`
	Message    string          `json:"message,omitempty"`
	OutputData json.RawMessage `json:"outputData,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ============================================================================
// 频道命名
// ============================================================================

// KeyTaskChannel 用户进度频道前缀
const KeyTaskChannel = "task_updates:"

// ChannelFor 返回用户的进度频道名
func ChannelFor(userID string) string {
	return KeyTaskChannel + userID
}
