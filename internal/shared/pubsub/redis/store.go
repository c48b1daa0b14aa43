// Package redis 进度总线 Redis Pub/Sub 实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-tasks/internal/shared/pubsub"
)

// Store Redis Pub/Sub 进度总线
//
// 订阅使用专用连接（订阅后的连接不能执行其他命令），
// 由调用方通过连接管理器按 pubsub 用途获取客户端。
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 从现有 Redis 客户端创建进度总线实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Publish 序列化并发布到消息所属用户的频道（fire-and-forget）
func (s *Store) Publish(ctx context.Context, msg *pubsub.TaskUpdateMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal task update %s: %w", msg.TaskID, err)
	}

	if err := s.client.Publish(ctx, pubsub.ChannelFor(msg.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish task update %s: %w", msg.TaskID, err)
	}
	return nil
}

// Subscribe 订阅指定用户的进度频道
//
// 返回的闭包关闭订阅并释放专用连接；消息解析失败只记日志、不中断订阅。
func (s *Store) Subscribe(ctx context.Context, userID string, onMessage func(*pubsub.TaskUpdateMessage)) (func() error, error) {
	channel := pubsub.ChannelFor(userID)
	sub := s.client.Subscribe(ctx, channel)

	// 确认订阅建立，订阅失败尽早暴露给调用方
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go func() {
		for raw := range sub.Channel() {
			var msg pubsub.TaskUpdateMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Printf("[Redis/PubSub] Malformed task update on %s: %v", channel, err)
				continue
			}
			onMessage(&msg)
		}
	}()

	log.Printf("[Redis/PubSub] Subscribed: channel=%s", channel)

	return func() error {
		log.Printf("[Redis/PubSub] Unsubscribed: channel=%s", channel)
		return sub.Close()
	}, nil
}

// Close 关闭总线；底层连接由连接管理器统一回收
func (s *Store) Close() error {
	return nil
}

// 确保 Store 实现了 Bus 接口
var _ pubsub.Bus = (*Store)(nil)
