// Package idempotency 幂等存储常量与键派生
package idempotency

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	// Key 前缀
	KeyIdempotency = "idempotency:"

	// TTLRecord 记录 TTL：窗口之外的重复请求视为新请求
	TTLRecord = time.Hour
)

// DeriveKey 从载荷派生幂等键
//
// 对序列化载荷做顺序敏感的滚动哈希，压缩为短 base-36 字符串。
// 载荷派生的去重过粗时（如刻意允许相同输入重跑），
// 调用方应自带显式 idempotencyKey。
func DeriveKey(payload interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	var hash uint64 = 5381
	for _, b := range data {
		hash = hash*33 + uint64(b)
	}

	return strconv.FormatUint(hash, 36)
}
