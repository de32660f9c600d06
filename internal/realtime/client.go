package realtime

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

	"github.com/pace-quizz/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS middleware on the HTTP API
	},
}

// TokenValidator checks a presenter token and returns its subject and role.
type TokenValidator func(token string) (userID uuid.UUID, role string, err error)

// ClientConfig tunes per-connection buffers.
type ClientConfig struct {
	SendBuffer int
	ReadLimit  int64
}

// Client is one websocket connection. Its inbound messages are handled in
// order on the read goroutine; outbound messages go through a bounded buffer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan WSMessage

	done      chan struct{}
	closeOnce sync.Once

	stateMu     sync.Mutex // orders state_sync deliveries against replays
	lastStateAt int64

	userID        uuid.UUID
	userRole      string
	authenticated bool

	// Only touched from the read goroutine.
	rooms        map[string]string             // join key -> room
	participants map[string]uuid.UUID          // room -> participant
	kinds        map[string]models.SessionKind // room -> kind, for rooms backed by a session

	logger *zap.Logger
}

func newClient(conn *websocket.Conn, buffer int, logger *zap.Logger) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan WSMessage, buffer),
		done:         make(chan struct{}),
		rooms:        make(map[string]string),
		participants: make(map[string]uuid.UUID),
		kinds:        make(map[string]models.SessionKind),
		logger:       logger,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg without blocking. It drops the message when the buffer is
// full or the connection is gone, and drops a replayed state_sync that is not
// newer than one already queued.
func (c *Client) Send(msg WSMessage) bool {
	if msg.Event == EventStateSync {
		c.stateMu.Lock()
		defer c.stateMu.Unlock()
		if msg.replay && msg.at <= c.lastStateAt {
			return false
		}
		if !c.enqueue(msg) {
			return false
		}
		if msg.at > c.lastStateAt {
			c.lastStateAt = msg.at
		}
		return true
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg WSMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Debug("send buffer full, message dropped", zap.String("client_id", c.id), zap.String("event", msg.Event))
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ServeWs upgrades GET /ws. The token query parameter is optional and only
// needed to join as host.
func ServeWs(hub *Hub, gw *Gateway, cfg ClientConfig, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			userID uuid.UUID
			role   string
			authed bool
		)
		if token := c.Query("token"); token != "" && validate != nil {
			var err error
			userID, role, err = validate(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
				return
			}
			authed = true
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(conn, cfg.SendBuffer, logger)
		client.userID, client.userRole, client.authenticated = userID, role, authed

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		go client.writePump()
		client.readPump(ctx, hub, gw, cfg.ReadLimit)
	}
}

func (c *Client) readPump(ctx context.Context, hub *Hub, gw *Gateway, readLimit int64) {
	defer func() {
		hub.Leave(c)
		c.close()
		_ = c.conn.Close()
		c.logger.Debug("client disconnected", zap.String("client_id", c.id))
	}()

	if readLimit <= 0 {
		readLimit = 64 * 1024
	}
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		c.dispatch(ctx, gw, msg)
	}
}

// dispatch runs one message through the gateway and acks it when the client asked for one.
func (c *Client) dispatch(ctx context.Context, gw *Gateway, msg WSMessage) {
	result, err := gw.Handle(ctx, c, msg)
	if err != nil {
		c.logger.Debug("event rejected", zap.String("client_id", c.id), zap.String("event", msg.Event), zap.Error(err))
	}
	if msg.ID == "" {
		return
	}
	reply := WSMessage{Event: EventAck, ID: msg.ID}
	if err != nil {
		reply.Error = err.Error()
	} else if reply.Data, err = json.Marshal(result); err != nil {
		reply.Error = "encode ack"
	}
	c.Send(reply)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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
