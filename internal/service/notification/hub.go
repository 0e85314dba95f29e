package notification

import (
	"sync"

	"github.com/gorilla/websocket"

	"shopease/internal/pkg/logger"
)

// client 给单个连接配一把写锁：订单创建与取消两个消费循环
// 可能同时向同一用户推送，而 gorilla/websocket 禁止并发写。
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub 维护按用户分组的 WebSocket 连接，把订单事件推送到浏览器。
// 推送与事件同级：都是尽力而为，掉线用户错过的通知不会补发。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*websocket.Conn]*client)}
}

// Register 登记一个用户连接。
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*websocket.Conn]*client)
	}
	h.clients[userID][conn] = &client{conn: conn}
	logger.Logger().Info().Str("user_id", userID).Msg("Notification client connected")
}

// Unregister 移除并关闭一个用户连接。
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	_ = conn.Close()
}

// Push 向某用户的全部在线连接推送一条 JSON 消息。
// 写失败的连接被就地摘除。
func (h *Hub) Push(userID string, payload interface{}) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients[userID]))
	for _, c := range h.clients[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(payload); err != nil {
			logger.Logger().Warn().Err(err).Str("user_id", userID).Msg("Failed to push notification, dropping connection")
			h.Unregister(userID, c.conn)
		}
	}
}
