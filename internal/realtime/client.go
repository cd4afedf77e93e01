package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mkaplan/matchnight/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Handler receives every parsed inbound frame. The gateway implements
// it; the client never interprets message types itself.
type Handler interface {
	HandleMessage(c *Client, msg *ClientMessage)
}

type Client struct {
	id       string
	conn     *websocket.Conn
	registry *Registry
	handler  Handler
	log      *log.Logger
	user     types.User
	room     RoomClass

	// mu guards roundSub, which the registry rewrites when the
	// connection re-subscribes to another round.
	mu       sync.Mutex
	roomKey  uuid.UUID
	roundSub uuid.UUID

	send        chan Message
	stop        chan struct{}
	stopOnce    sync.Once
	connectedAt time.Time
	lastActive  atomic.Int64
}

func NewClient(user types.User, conn *websocket.Conn, rg *Registry, h Handler, l *log.Logger, room RoomClass, roomKey uuid.UUID) *Client {
	c := &Client{
		conn:        conn,
		registry:    rg,
		handler:     h,
		log:         l,
		user:        user,
		room:        room,
		roomKey:     roomKey,
		send:        make(chan Message, 256),
		stop:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	c.touch()
	return c
}

func (c *Client) Id() string        { return c.id }
func (c *Client) User() types.User  { return c.user }
func (c *Client) Room() RoomClass   { return c.room }
func (c *Client) IsOrganizer() bool { return c.user.IsOrganizer }

func (c *Client) RoomKey() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomKey
}

// RoundSubscription is the round-timer room the connection currently
// belongs to, or uuid.Nil.
func (c *Client) RoundSubscription() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundSub
}

func (c *Client) setRoundSubscription(roundId uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roundSub = roundId
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Client) lastActivity() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write pump for connection %q exiting", c.id)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.registry.Unregister(c.id)
		c.log.Printf("read pump for connection %q exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.touch()

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage())
			continue
		}

		c.handler.HandleMessage(c, &msg)
	}
}

// queueMessage attempts a non-blocking enqueue to the write pump. A
// full buffer means the connection cannot keep up and is treated as
// dead by the caller.
func (c *Client) queueMessage(msg Message) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for connection %q", c.id)
		return false
	}

	return true
}

func (c *Client) writeMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}
