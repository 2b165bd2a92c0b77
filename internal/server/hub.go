package server

import (
	"net/http"
	"sync"
	"time"

	"aepaudit/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub 管理所有活动的WebSocket订阅端，向它们广播状态更新
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	log     logger.Logger
}

func newHub(l logger.Logger) *Hub {
	if l == nil {
		l = logger.NewNop()
	}
	return &Hub{clients: make(map[*wsClient]bool), log: l}
}

// wsClient 单个WebSocket连接，发送走带缓冲通道避免阻塞广播方
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// register 登记新连接
func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.log.Info("WebSocket客户端接入", "clients", len(h.clients))
}

// unregister 注销连接并关闭发送通道
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Info("WebSocket客户端断开", "clients", len(h.clients))
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 向所有连接广播一条消息，消费不过来的连接直接踢掉
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	var stale []*wsClient
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Warn("WebSocket客户端消费过慢，断开连接")
		h.unregister(c)
		c.conn.Close()
	}
}

// CloseAll 关闭全部连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
		c.conn.Close()
	}
}

// serveWS 把HTTP连接升级为WebSocket并启动读写泵
func (h *Hub) serveWS(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Err(err, "WebSocket升级失败", "remote", r.RemoteAddr)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 32)}
	h.register(c)
	go h.writePump(c)
	go h.readPump(c)
}

// readPump 消费入站帧。订阅端不需要发消息，这里只维持心跳与关闭检测。
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 把广播消息写给连接，定期发ping保活
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
