// Package opsserver WebSocket 进度网关
//
// 进度网关提供实时任务进度推送能力，支持前端实时展示任务执行进度。
// 每个连接订阅一个用户的进度频道，消息按需由客户端自行按 taskId 过滤。
package opsserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ai-tasks/internal/shared/pubsub"
	"ai-tasks/pkg/logging"
)

// upgrader WebSocket 升级器配置
//
// 配置说明：
//   - ReadBufferSize: 读缓冲区大小
//   - WriteBufferSize: 写缓冲区大小
//   - CheckOrigin: 跨域检查（当前允许所有来源，生产环境应限制）
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient 单个 WebSocket 连接
//
// 进度消息来自订阅回调 goroutine，pong 响应来自读循环，
// 写互斥保护两个来源不交叉写同一连接。
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// ProgressGateway WebSocket 进度网关
//
// 网关负责：
//   - 管理 WebSocket 连接
//   - 按用户订阅进度频道并把消息推送给该用户的全部连接
//   - 连接断开时取消订阅
type ProgressGateway struct {
	bus     pubsub.Bus                    // 进度总线
	clients map[string]map[*wsClient]bool // 按用户索引的客户端连接
	mu      sync.RWMutex                  // 保护 clients 映射
	metrics *Metrics
	logger  *logging.Logger
}

// NewProgressGateway 创建进度网关实例
func NewProgressGateway(bus pubsub.Bus, metrics *Metrics) *ProgressGateway {
	return &ProgressGateway{
		bus:     bus,
		clients: make(map[string]map[*wsClient]bool),
		metrics: metrics,
		logger:  logging.Default("progress-ws"),
	}
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/progress
//
// 查询参数：
//   - user_id: 用户标识（必填），决定订阅哪个进度频道
//
// 推送消息格式：
//
//	进度消息：{"type": "progress", "data": {...}}
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *ProgressGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn}
	defer conn.Close()

	g.addClient(userID, client)
	defer g.removeClient(userID, client)

	g.logger.WithUserID(userID).Info("websocket client connected")

	unsubscribe, err := g.bus.Subscribe(r.Context(), userID, func(msg *pubsub.TaskUpdateMessage) {
		if err := client.writeJSON(map[string]interface{}{
			"type": "progress",
			"data": msg,
		}); err != nil {
			g.logger.WithError(err).WithUserID(userID).Warn("failed to push progress")
		}
	})
	if err != nil {
		g.logger.WithError(err).WithUserID(userID).Error("failed to subscribe progress channel")
		return
	}
	defer unsubscribe()

	// 读循环：处理心跳并感知连接关闭
	for {
		var msg struct {
			Type string `json:"type"`
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			client.writeJSON(map[string]string{"type": "pong"})
		}
	}

	g.logger.WithUserID(userID).Info("websocket client disconnected")
}

// addClient 注册客户端连接
func (g *ProgressGateway) addClient(userID string, c *wsClient) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.clients[userID] == nil {
		g.clients[userID] = make(map[*wsClient]bool)
	}
	g.clients[userID][c] = true
	g.metrics.ProgressClients.Inc()
}

// removeClient 注销客户端连接
func (g *ProgressGateway) removeClient(userID string, c *wsClient) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conns, ok := g.clients[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(g.clients, userID)
		}
	}
	g.metrics.ProgressClients.Dec()
}

// ClientCount 当前连接数（测试与运维观测用）
func (g *ProgressGateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, conns := range g.clients {
		n += len(conns)
	}
	return n
}
