package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ecs/backend/internal/domain"
	"ecs/backend/internal/monitoring"
	"ecs/backend/internal/pool"
)

const (
	// 写超时
	writeWait = 10 * time.Second
	// 读超时，收到 pong 后续期
	pongWait = 60 * time.Second
	// ping 间隔，必须小于 pongWait
	pingPeriod = 54 * time.Second
	// 客户端发送缓冲
	sendBuffer = 256
	// 转发到 Redis 的超时
	relayTimeout = 5 * time.Second
)

// Authenticator 从请求中识别已登录用户
type Authenticator func(c *gin.Context) (*domain.User, error)

// Relay 多实例之间转发事件
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// 如果允许所有来源
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			// 没有 Origin 视为同源请求
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// MessageType 客户端控制消息类型
type MessageType string

const (
	MessageTypePing MessageType = "ping"
	MessageTypePong MessageType = "pong"
)

// Message 客户端控制消息
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client 代表一个已登录浏览器的连接
type Client struct {
	ID     string
	UserID uint
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *zap.Logger
}

// Options Hub 配置
type Options struct {
	AllowedOrigins []string
	// Relay 为空时只在本实例内广播
	Relay   Relay
	Pool    *pool.WorkerPool
	Metrics *monitoring.Metrics
}

// Hub 管理所有连接，并把公文事件推送给每个已登录的客户端。
// 不保存历史事件，连接建立前发生的事件不会补发。
type Hub struct {
	clients        map[string]*Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan []byte
	done           chan struct{}
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	relay          Relay
	relayPool      *pool.WorkerPool
	metrics        *monitoring.Metrics
}

// NewHub 创建WebSocket Hub
func NewHub(opts Options, log *zap.Logger) *Hub {
	allowedOrigins := opts.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, sendBuffer),
		done:           make(chan struct{}),
		log:            log,
		allowedOrigins: allowedOrigins,
		relay:          opts.Relay,
		relayPool:      opts.Pool,
		metrics:        opts.Metrics,
	}
}

// Run 启动Hub，直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(count)
			h.log.Debug("client registered", zap.String("id", client.ID), zap.Uint("user_id", client.UserID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(count)
			h.log.Debug("client unregistered", zap.String("id", client.ID))

		case data := <-h.broadcast:
			h.broadcastToAll(data)
		}
	}
}

// Publish 推送公文事件：先在本实例广播，再异步转发给其他实例
func (h *Hub) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal event", zap.Error(err))
		return
	}

	h.metrics.RecordBroadcast(string(event.Type))
	h.Broadcast(data)

	if h.relay == nil {
		return
	}
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()
		if err := h.relay.Publish(ctx, data); err != nil {
			h.log.Warn("failed to relay event", zap.String("type", string(event.Type)), zap.Error(err))
		}
	}
	if h.relayPool == nil {
		go task()
		return
	}
	if !h.relayPool.TrySubmit(task) {
		h.log.Warn("relay queue full, event not relayed", zap.String("type", string(event.Type)))
	}
}

// Broadcast 将已编码的事件发给本实例所有客户端，队列满时丢弃
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("broadcast queue full, event dropped")
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastToAll 非阻塞地发给每个客户端，阻塞的客户端跳过
func (h *Hub) broadcastToAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.metrics.SetWebsocketClients(0)
}

// HandleWebSocket 处理WebSocket连接，只接受已登录用户
func HandleWebSocket(hub *Hub, authenticate Authenticator) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		user, err := authenticate(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			UserID: user.ID,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			hub:    hub,
			log:    hub.log,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 读取客户端消息，连接断开时注销
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			break
		}

		if msg.Type == MessageTypePing {
			c.sendMessage(&Message{Type: MessageTypePong, Timestamp: time.Now()})
		}
	}
}

// writePump 发送消息给客户端
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

// sendMessage 发送控制消息给客户端，已注销的客户端忽略
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.ID]; !ok {
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
