// Package limiter 并发限制常量
package limiter

import "time"

const (
	// Key 前缀
	KeyConcurrency = "concurrency:"

	// DefaultMaxConcurrent 默认单用户并发上限
	DefaultMaxConcurrent = 5

	// TTLCounter 计数器 TTL：崩溃进程泄漏的名额在此窗口后回收
	TTLCounter = time.Hour
)
