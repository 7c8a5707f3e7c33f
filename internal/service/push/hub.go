// Package push 维护用户的 WebSocket 会话，并把订单事件推送给在线用户
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Envelope 是推送给客户端的消息格式
type Envelope struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

// Hub 维护所有活跃的连接，同一用户可以有多个会话
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
	upgrader   websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run 处理注册和注销，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			sessions, ok := h.clients[client.userID]
			if !ok {
				sessions = make(map[*Client]struct{})
				h.clients[client.userID] = sessions
			}
			sessions[client] = struct{}{}
			h.lock.Unlock()
			log.Debug().Str("user", client.userID).Msg("push session registered")
		case client := <-h.unregister:
			h.remove(client)
			log.Debug().Str("user", client.userID).Msg("push session unregistered")
		case <-ctx.Done():
			h.lock.Lock()
			for userID, sessions := range h.clients {
				for client := range sessions {
					close(client.send)
				}
				delete(h.clients, userID)
			}
			h.lock.Unlock()
			return nil
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	sessions, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := sessions[client]; ok {
		delete(sessions, client)
		close(client.send)
	}
	if len(sessions) == 0 {
		delete(h.clients, client.userID)
	}
}

// Publish 实现 port.EventPublisher，缓冲区满的会话直接丢弃这条消息
func (h *Hub) Publish(ctx context.Context, userID, eventType string, payload any) {
	data, err := json.Marshal(Envelope{Type: eventType, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("type", eventType).Msg("failed to encode push event")
		return
	}

	h.lock.RLock()
	defer h.lock.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- data:
		default:
			log.Ctx(ctx).Warn().Str("user", userID).Str("type", eventType).Msg("push buffer full, event dropped")
		}
	}
}

// Sessions 返回用户当前的在线会话数
func (h *Hub) Sessions(userID string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients[userID])
}

// Serve 把已认证的请求升级为 WebSocket 并注册会话
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), userID: userID}
	select {
	case h.register <- client:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// writePump 把 send 中的消息写入连接，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理心跳，客户端发来的内容被忽略
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		default:
			c.hub.remove(c)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
