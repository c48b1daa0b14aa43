// Package pubsub 任务进度发布/订阅抽象接口
//
// 每用户一个频道（而非每任务）：同一用户的全部任务更新复用一个
// 频道，订阅端按需自行按 taskId 过滤。
//
// 发布是 fire-and-forget：无确认、无持久化，发布时刻不在线的
// 订阅者错过即错过。客户端以持久存储的轮询/拉取对账最终状态，
// 不依赖本通道保证正确性。
package pubsub

import "context"

// Bus 进度事件总线接口
type Bus interface {
	// Publish 序列化并发布到消息所属用户的频道
	Publish(ctx context.Context, msg *TaskUpdateMessage) error

	// Subscribe 订阅指定用户的进度频道，返回取消订阅闭包
	Subscribe(ctx context.Context, userID string, onMessage func(*TaskUpdateMessage)) (func() error, error)

	Close() error
}
