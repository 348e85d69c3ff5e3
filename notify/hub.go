package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"pibot/trader"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	clientBuffer = 32
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage 推送给 websocket 客户端的消息
type wsMessage struct {
	Event trader.Event `json:"event"`
	Text  string       `json:"text"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 把交易事件广播给所有 websocket 客户端；慢客户端的消息直接丢弃
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	log     zerolog.Logger
}

// NewHub 创建广播中心
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		log:     log.With().Str("component", "ws_hub").Logger(),
	}
}

// ServeHTTP 升级为 websocket 连接并注册客户端
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("⚠️  [WS] 升级失败")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("🔌 [WS] 客户端已连接")

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *wsClient) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

// readLoop 只用于感知断开
func (h *Hub) readLoop(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notify 实现 trader.Notifier
func (h *Hub) Notify(_ context.Context, ev trader.Event) error {
	data, err := json.Marshal(wsMessage{Event: ev, Text: FormatEvent(ev)})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return errors.New("ws: dropped event for slow clients")
	}
	return nil
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
