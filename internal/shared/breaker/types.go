// Package breaker 分布式熔断器类型定义与状态机
//
// 每个提供商一条记录，权威副本存放在共享存储中：
// 横向扩展的多个工作进程调用同一提供商时，熔断判定全局一致。
package breaker

import (
	"errors"
	"time"
)

// State 熔断器状态
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen 熔断开启错误
//
// 区别于一般失败：调用方必须快速失败并降级（或向用户返回
// "服务暂时不可用"），不应按普通错误重试。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings 熔断器参数
type Settings struct {
	FailureThreshold int           // 连续失败次数阈值，达到后熔断
	ResetTimeout     time.Duration // 熔断冷却窗口，过后允许试探调用
	StateTTL         time.Duration // 状态记录 TTL，避免废弃提供商的记录无限累积
}

// DefaultSettings 默认熔断参数
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		StateTTL:         time.Hour,
	}
}

// Record 单个提供商的熔断记录
type Record struct {
	State        State     `json:"state"`
	FailureCount int       `json:"failureCount"`
	OpenedAt     time.Time `json:"openedAt,omitzero"`
}

// ============================================================================
// 状态机（纯函数）
// ============================================================================

// Evaluate 惰性求值当前状态
//
// open 且冷却期已过 ⇒ half-open。这是读者驱动的转移：
// 并发读者各自独立计算出同一结果是正确行为，写回只是缓存刷新。
func Evaluate(rec Record, now time.Time, s Settings) State {
	if rec.State == StateOpen && !rec.OpenedAt.IsZero() && now.Sub(rec.OpenedAt) >= s.ResetTimeout {
		return StateHalfOpen
	}
	if rec.State == "" {
		return StateClosed
	}
	return rec.State
}

// NextOnSuccess 成功后的记录：回到 closed，失败计数清零
func NextOnSuccess(rec Record) Record {
	return Record{State: StateClosed}
}

// NextOnFailure 失败后的记录
//
// half-open 下一次失败立即重开（不重新累计到阈值），记录新的 OpenedAt；
// closed 下累计计数，达到阈值转 open。
func NextOnFailure(rec Record, now time.Time, s Settings) Record {
	switch Evaluate(rec, now, s) {
	case StateHalfOpen:
		return Record{State: StateOpen, FailureCount: rec.FailureCount, OpenedAt: now}
	case StateOpen:
		// 已熔断期间上报的失败不改变窗口
		return rec
	default:
		count := rec.FailureCount + 1
		if count >= s.FailureThreshold {
			return Record{State: StateOpen, FailureCount: count, OpenedAt: now}
		}
		return Record{State: StateClosed, FailureCount: count}
	}
}

// Key 前缀
const KeyCircuit = "circuit:"
