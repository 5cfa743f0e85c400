// Package publisher is the tracker-bridge side of the ingest protocol: it
// dials gazed and forwards frames and status over a WebSocket.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
	pingPeriod       = 30 * time.Second
)

// Client sends tracker messages to a gazed ingest endpoint
type Client struct {
	url    string
	logger *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex // one writer at a time

	sent    uint64
	latency time.Duration
}

// NewClient creates a client for an ingest URL such as
// ws://localhost:8080/ws/tracker/bridge-1.
func NewClient(url string) *Client {
	return &Client{
		url:    url,
		logger: log.With("component", "publisher"),
	}
}

// Connect dials the ingest endpoint, replacing any existing connection
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.wsMu.Lock()
	prev := c.ws
	c.ws = ws
	c.wsMu.Unlock()

	// Closing the old conn also ends its readLoop.
	if prev != nil {
		prev.Close()
		c.logger.Debug("replaced previous connection")
	}

	go c.readLoop(ws)

	c.logger.Info("connected", "url", c.url)
	return nil
}

// readLoop consumes replies so control frames are processed; pongs update latency
func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypePong {
			continue
		}
		if pong, err := msg.GetPongData(); err == nil {
			c.wsMu.Lock()
			c.latency = time.Duration(pong.LatencyMs) * time.Millisecond
			c.wsMu.Unlock()
		}
	}
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	c.sent++
	return nil
}

// SendFrame forwards one gaze frame
func (c *Client) SendFrame(f gaze.Frame) error {
	msg, err := protocol.NewFrameMessage(f)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// SendStatus reports tracker connection and calibration state
func (c *Client) SendStatus(status protocol.StatusData) error {
	msg, err := protocol.NewStatusMessage(status)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Ping sends an application-level ping; the reply updates Latency.
func (c *Client) Ping(id string) error {
	msg, err := protocol.NewPingMessage(id, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Sent returns the number of messages written
func (c *Client) Sent() uint64 {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.sent
}

// Latency returns the last measured ping round trip
func (c *Client) Latency() time.Duration {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.latency
}

// Run forwards frames until the channel closes or ctx is done, pinging
// periodically to keep the connection and latency reading fresh.
func (c *Client) Run(ctx context.Context, frames <-chan gaze.Frame) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := c.SendFrame(f); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.Ping("keepalive"); err != nil {
				return err
			}
		}
	}
}

// Close sends a close frame and closes the connection
func (c *Client) Close() error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil {
		return nil
	}
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	err := c.ws.Close()
	c.ws = nil
	return err
}
