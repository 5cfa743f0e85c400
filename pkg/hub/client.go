package hub

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be less than pongWait

	// Viewers only send short control commands.
	maxMessageSize = 4 * 1024
)

// Viewer commands, sent as text frames.
const (
	CommandPause  = "pause"
	CommandResume = "resume"
)

// Client is one viewer connection. A paused viewer keeps its connection
// alive but is sent nothing until it resumes, at which point it gets the
// latest message.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message // owned and closed by the hub loop; never sent on here

	paused  atomic.Bool
	lastSeq uint64 // writePump only
}

// NewClient creates a client and registers it with the hub.
// It returns nil if the hub has already stopped.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}
	select {
	case hub.register <- c:
		return c
	case <-hub.done:
		return nil
	}
}

// Run pumps the connection and blocks until it closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// Paused reports whether the viewer asked to stop receiving updates
func (c *Client) Paused() bool {
	return c.paused.Load()
}

// handleCommand applies a viewer command and reports whether it was known
func (c *Client) handleCommand(cmd string) bool {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case CommandPause:
		c.paused.Store(true)
	case CommandResume:
		if c.paused.Swap(false) {
			c.hub.requestReplay(c)
		}
	default:
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.TextMessage && !c.handleCommand(string(data)) {
			c.hub.logger.Debug("unknown viewer command", "command", string(data))
		}
	}
}

// writePump owns all writes to the connection. Sequenced messages the viewer
// already has are skipped, which covers a resume racing a broadcast.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if c.Paused() || (msg.Seq != 0 && msg.Seq <= c.lastSeq) {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				return
			}
			if msg.Seq != 0 {
				c.lastSeq = msg.Seq
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
