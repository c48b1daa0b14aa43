// Package connmgr Redis 连接管理
//
// 按用途提供命名连接：
//   - PurposeQueue: 队列操作连接（阻塞式出队，不设读超时）
//   - PurposePubSub: 发布/订阅专用连接（订阅后不可复用执行其他命令）
//   - PurposeCache: 通用缓存连接（熔断器、限流计数、幂等记录）
//
// 连接按 (环境, 用途, 名称) 缓存复用；已关闭或失效的缓存连接
// 会被透明地丢弃并重建。重连退避参数按部署环境配置。
package connmgr

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-tasks/internal/config"
)

// Purpose 连接用途
type Purpose string

const (
	PurposeQueue  Purpose = "queue"
	PurposePubSub Purpose = "pubsub"
	PurposeCache  Purpose = "cache"
)

// Manager 连接管理器
//
// 进程级共享；所有方法并发安全。
type Manager struct {
	cfg *config.Config

	mu      sync.Mutex
	clients map[string]*redis.Client
}

// NewManager 创建连接管理器
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		clients: make(map[string]*redis.Client),
	}
}

// cacheKey 连接缓存键：(环境, 用途, 名称)
func (m *Manager) cacheKey(purpose Purpose, name string) string {
	return fmt.Sprintf("%s:%s:%s", m.cfg.Env, purpose, name)
}

// Get 获取指定用途的连接
//
// name 可选，用于区分同一用途下的多个连接（如每个订阅者一个
// pubsub 连接）。缓存命中时做一次快速存活探测，失效则重建。
func (m *Manager) Get(ctx context.Context, purpose Purpose, name ...string) (*redis.Client, error) {
	n := "default"
	if len(name) > 0 && name[0] != "" {
		n = name[0]
	}
	key := m.cacheKey(purpose, n)

	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[key]; ok {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return client, nil
		}
		// 失效连接：丢弃并重建
		log.Printf("[Redis/Conn] Stale connection discarded: purpose=%s name=%s err=%v", purpose, n, err)
		client.Close()
		delete(m.clients, key)
	}

	client, err := m.dial(ctx, purpose)
	if err != nil {
		return nil, err
	}

	m.clients[key] = client
	return client, nil
}

// dial 建立新连接并验证可用性
func (m *Manager) dial(ctx context.Context, purpose Purpose) (*redis.Client, error) {
	opts, err := redis.ParseURL(m.cfg.Redis.URLFor(string(purpose)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL for %s: %w", purpose, err)
	}

	retry := m.cfg.Redis.Retry
	opts.MaxRetries = retry.MaxRetries
	opts.MinRetryBackoff = retry.MinBackoff
	opts.MaxRetryBackoff = retry.MaxBackoff
	opts.DialTimeout = retry.DialTimeout

	// 队列连接禁用读超时：阻塞式出队需要无限等待新任务，
	// 不能被误判为命令挂起
	if purpose == PurposeQueue {
		opts.ReadTimeout = -1
	}

	if m.cfg.Redis.TLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	opts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		log.Printf("[Redis/Conn] Connected: purpose=%s addr=%s", purpose, opts.Addr)
		return nil
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, retry.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis (%s): %w", purpose, err)
	}

	return client, nil
}

// Invalidate 主动失效指定连接（下次 Get 时重建）
func (m *Manager) Invalidate(purpose Purpose, name ...string) {
	n := "default"
	if len(name) > 0 && name[0] != "" {
		n = name[0]
	}
	key := m.cacheKey(purpose, n)

	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[key]; ok {
		client.Close()
		delete(m.clients, key)
		log.Printf("[Redis/Conn] Connection invalidated: purpose=%s name=%s", purpose, n)
	}
}

// Close 关闭所有缓存连接
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for key, client := range m.clients {
		if err := client.Close(); err != nil {
			lastErr = err
		}
		delete(m.clients, key)
	}
	return lastErr
}
