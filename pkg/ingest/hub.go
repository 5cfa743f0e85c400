// Package ingest accepts WebSocket connections from tracker bridges and
// hands their gaze frames to a callback.
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// TrackerConnection represents a connected tracker bridge
type TrackerConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	status   *protocol.StatusData
	frames   uint64
}

// Send sends a message to the tracker
func (t *TrackerConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Conn.WriteMessage(websocket.TextMessage, data)
}

// Status returns the last status the tracker reported, if any
func (t *TrackerConnection) Status() (protocol.StatusData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == nil {
		return protocol.StatusData{}, false
	}
	return *t.status, true
}

func (t *TrackerConnection) touch() {
	t.mu.Lock()
	t.lastSeen = time.Now()
	t.mu.Unlock()
}

// Hub manages WebSocket connections from tracker bridges
type Hub struct {
	mu       sync.RWMutex
	trackers map[string]*TrackerConnection
	logger   *slog.Logger

	// Callbacks
	onFrame  func(trackerID string, frame gaze.Frame)
	onStatus func(trackerID string, status *protocol.StatusData)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	parseErrors      atomic.Uint64
}

// NewHub creates a new tracker hub. A nil logger uses the global one.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.With("component", "ingest")
	}
	return &Hub{
		trackers: make(map[string]*TrackerConnection),
		logger:   logger,
	}
}

// OnFrame sets the callback for incoming gaze frames. Frames from one tracker
// are delivered in order from that tracker's read loop.
func (h *Hub) OnFrame(callback func(trackerID string, frame gaze.Frame)) {
	h.mu.Lock()
	h.onFrame = callback
	h.mu.Unlock()
}

// OnStatus sets the callback for tracker status updates
func (h *Hub) OnStatus(callback func(trackerID string, status *protocol.StatusData)) {
	h.mu.Lock()
	h.onStatus = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/tracker", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/tracker", websocket.New(h.handleTracker))
	app.Get("/ws/tracker/:id", websocket.New(h.handleTracker))
}

// handleTracker handles a tracker WebSocket connection
func (h *Hub) handleTracker(c *websocket.Conn) {
	trackerID := c.Params("id")
	if trackerID == "" {
		trackerID = generateTrackerID()
	}

	now := time.Now()
	tracker := &TrackerConnection{
		ID:        trackerID,
		Conn:      c,
		Connected: now,
		lastSeen:  now,
	}

	h.mu.Lock()
	h.trackers[trackerID] = tracker
	count := len(h.trackers)
	h.mu.Unlock()

	h.logger.Info("tracker connected", "tracker", trackerID, "total", count)

	defer func() {
		h.mu.Lock()
		if h.trackers[trackerID] == tracker {
			delete(h.trackers, trackerID)
		}
		count := len(h.trackers)
		h.mu.Unlock()

		h.logger.Info("tracker disconnected", "tracker", trackerID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("tracker read ended", "tracker", trackerID, "error", err)
			return
		}

		tracker.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(tracker, data)
	}
}

// handleMessage processes an incoming message from a tracker
func (h *Hub) handleMessage(tracker *TrackerConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.parseErrors.Add(1)
		h.logger.Debug("dropping message", "tracker", tracker.ID, "error", err)
		return
	}

	h.mu.RLock()
	frameCb := h.onFrame
	statusCb := h.onStatus
	h.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeFrame:
		frame, err := msg.GetFrame()
		if err != nil {
			h.parseErrors.Add(1)
			h.logger.Debug("dropping frame", "tracker", tracker.ID, "error", err)
			return
		}
		h.framesReceived.Add(1)
		tracker.mu.Lock()
		tracker.frames++
		tracker.mu.Unlock()
		if frameCb != nil {
			frameCb(tracker.ID, frame)
		}

	case protocol.TypeStatus:
		status, err := msg.GetStatusData()
		if err != nil {
			h.parseErrors.Add(1)
			return
		}
		tracker.mu.Lock()
		tracker.status = status
		tracker.mu.Unlock()

		rating, label := calibration.Rate(status.Calibration)
		h.logger.Info("tracker status",
			"tracker", tracker.ID,
			"activated", status.Activated,
			"calibrated", status.Calibrated,
			"rating", rating,
			"calibration", label)
		if statusCb != nil {
			statusCb(tracker.ID, status)
		}

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			h.parseErrors.Add(1)
			return
		}
		if err := h.SendPong(tracker.ID, ping.ID, msg.Timestamp); err != nil {
			h.logger.Debug("pong failed", "tracker", tracker.ID, "error", err)
		}
	}
}

// SendPong sends a pong response to a tracker
func (h *Hub) SendPong(trackerID, pingID string, pingTS int64) error {
	msg, err := protocol.NewPongMessage(pingID, pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return h.sendToTracker(trackerID, msg)
}

// sendToTracker sends a message to a specific tracker
func (h *Hub) sendToTracker(trackerID string, msg *protocol.Message) error {
	h.mu.RLock()
	tracker, ok := h.trackers[trackerID]
	h.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "tracker not connected")
	}

	h.messagesSent.Add(1)
	return tracker.Send(msg)
}

// GetTracker returns a tracker connection by ID
func (h *Hub) GetTracker(trackerID string) *TrackerConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.trackers[trackerID]
}

// TrackerCount returns the number of connected trackers
func (h *Hub) TrackerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.trackers)
}

// Stats contains hub statistics
type Stats struct {
	TrackerCount     int    `json:"tracker_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	ParseErrors      uint64 `json:"parse_errors"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		TrackerCount:     h.TrackerCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		ParseErrors:      h.parseErrors.Load(),
	}
}

// TrackerInfo contains info about a connected tracker
type TrackerInfo struct {
	ID                string               `json:"id"`
	Connected         time.Time            `json:"connected"`
	LastSeen          time.Time            `json:"last_seen"`
	Frames            uint64               `json:"frames"`
	Status            *protocol.StatusData `json:"status,omitempty"`
	CalibrationRating int                  `json:"calibration_rating"`
	CalibrationLabel  string               `json:"calibration_label"`
}

// GetTrackerInfos returns info about all connected trackers
func (h *Hub) GetTrackerInfos() []TrackerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]TrackerInfo, 0, len(h.trackers))
	for _, t := range h.trackers {
		t.mu.Lock()
		info := TrackerInfo{
			ID:        t.ID,
			Connected: t.Connected,
			LastSeen:  t.lastSeen,
			Frames:    t.frames,
		}
		var result *calibration.Result
		if t.status != nil {
			st := *t.status
			info.Status = &st
			result = st.Calibration
		}
		t.mu.Unlock()

		info.CalibrationRating, info.CalibrationLabel = calibration.Rate(result)
		infos = append(infos, info)
	}
	return infos
}

// RegisterAPIRoutes registers API routes for tracker inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	trackers := api.Group("/trackers")

	trackers.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"trackers": h.GetTrackerInfos(),
			"count":    h.TrackerCount(),
		})
	})

	trackers.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	trackers.Get("/:id/status", func(c *fiber.Ctx) error {
		tracker := h.GetTracker(c.Params("id"))
		if tracker == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tracker not connected"})
		}
		status, ok := tracker.Status()
		if !ok {
			return c.Status(fiber.StatusNoContent).Send(nil)
		}
		rating, label := calibration.Rate(status.Calibration)
		return c.JSON(fiber.Map{
			"status":             status,
			"calibration_rating": rating,
			"calibration_label":  label,
		})
	})
}

func generateTrackerID() string {
	return uuid.NewString()
}
