package ws

import (
	"net/http"
	"sync"
	"time"

	"pairchat/internal/auth"
	"pairchat/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 4 << 10
	sendBuffer     = 256
)

// Client 是一条已认证的 websocket 连接，实现 Handle。
// send 从不关闭，关闭信号走 done，Push 因此不会向已关闭的 channel 写入。
type Client struct {
	reg    *Registry
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	userID string
}

func newClient(reg *Registry, conn *websocket.Conn, userID string) *Client {
	return &Client{
		reg:    reg,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		userID: userID,
	}
}

func (c *Client) Push(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlow
	}
}

func (c *Client) shutdown() { c.once.Do(func() { close(c.done) }) }

// Serve 返回 websocket 端点。必须挂在 Authenticator 中间件之后，
// 连接身份只来自中间件解析出的用户。
func Serve(reg *Registry, checkOrigin func(r *http.Request) bool) gin.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("ws upgrade")
			return
		}
		client := newClient(reg, conn, user.ID)
		if reg.Register(user.ID, client) {
			log.Info().Str("user_id", user.ID).Msg("ws connection replaced by newer one")
		}
		metrics.WsConnections.Inc()
		BroadcastOnline(reg)

		go client.writePump()
		client.readPump()
	}
}

// BroadcastOnline 把最新在线列表推给所有在线连接。
func BroadcastOnline(reg *Registry) {
	b, err := Encode(EventOnlineUsers, reg.Online())
	if err != nil {
		log.Error().Err(err).Msg("encode online users")
		return
	}
	reg.Broadcast(b)
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		if c.reg.Unregister(c.userID, c) {
			BroadcastOnline(c.reg)
		}
		metrics.WsConnections.Dec()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// 客户端经 REST 发送消息，这里的入站帧只用于保活。
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("user_id", c.userID).Msg("ws read")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
