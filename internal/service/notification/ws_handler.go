package notification

import (
	"net/http"

	"github.com/gorilla/websocket"

	"shopease/internal/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 鉴权在边缘网关完成，这里不再校验来源
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler 把 HTTP 连接升级为 WebSocket 并挂到 Hub 上。
type WSHandler struct {
	hub *Hub
}

func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册推送端点。
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.handleConnect)
}

func (h *WSHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		http.Error(w, "user identity is required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger().Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	h.hub.Register(userID, conn)

	// 读循环只为感知断连，客户端到服务端没有业务消息
	go func() {
		defer h.hub.Unregister(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
