package ingest

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

func newTestApp(hub *Hub) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))
	return app
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage error: %v", err)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(log.Discard())

	if hub.TrackerCount() != 0 {
		t.Error("TrackerCount should be 0 initially")
	}

	stats := hub.GetStats()
	if stats.MessagesReceived != 0 || stats.FramesReceived != 0 || stats.ParseErrors != 0 {
		t.Errorf("stats should start at zero: %+v", stats)
	}
	if len(hub.GetTrackerInfos()) != 0 {
		t.Error("GetTrackerInfos should be empty initially")
	}
}

func TestGenerateTrackerID(t *testing.T) {
	a, b := generateTrackerID(), generateTrackerID()
	if a == "" || a == b {
		t.Errorf("tracker IDs should be unique and non-empty: %q %q", a, b)
	}
}

func TestUpgradeRequired(t *testing.T) {
	app := newTestApp(NewHub(log.Discard()))

	req := httptest.NewRequest("GET", "/ws/tracker", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want %d", resp.StatusCode, fiber.StatusUpgradeRequired)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	hub := NewHub(log.Discard())
	app := newTestApp(hub)

	go app.Listen(":18180")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws := dial(t, "ws://localhost:18180/ws/tracker/bridge-1")
	time.Sleep(50 * time.Millisecond)

	if hub.TrackerCount() != 1 {
		t.Errorf("TrackerCount = %d, want 1", hub.TrackerCount())
	}
	if hub.GetTracker("bridge-1") == nil {
		t.Error("GetTracker should return the connected tracker")
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if hub.TrackerCount() != 0 {
		t.Errorf("TrackerCount = %d, want 0 after disconnect", hub.TrackerCount())
	}
}

func TestFramesReachValidator(t *testing.T) {
	hub := NewHub(log.Discard())
	app := newTestApp(hub)

	v, err := gaze.New(gaze.DefaultConfig(), gaze.WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("gaze.New error: %v", err)
	}

	var frames atomic.Int64
	var fromTracker atomic.Value
	hub.OnFrame(func(trackerID string, f gaze.Frame) {
		fromTracker.Store(trackerID)
		v.Update(f)
		frames.Add(1)
	})

	go app.Listen(":18181")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws := dial(t, "ws://localhost:18181/ws/tracker/frame-test")
	defer ws.Close()

	now := time.Now().UnixMilli()
	frame := gaze.Frame{
		Timestamp: now,
		State:     gaze.StateTrackingGaze | gaze.StateTrackingEyes | gaze.StateTrackingPresence,
		Raw:       gaze.Point2D{X: 700, Y: 400},
		Smoothed:  gaze.Point2D{X: 698, Y: 401},
		Left:      gaze.Eye{PupilCenter: gaze.Point2D{X: 0.4, Y: 0.5}},
		Right:     gaze.Eye{PupilCenter: gaze.Point2D{X: 0.6, Y: 0.5}},
	}
	msg, _ := protocol.NewFrameMessage(frame)
	send(t, ws, msg)

	// A malformed message is dropped without closing the connection.
	ws.WriteMessage(websocket.TextMessage, []byte("not json"))

	failed := frame
	failed.Timestamp = now + 16
	failed.State = gaze.StateTrackingLost
	msg, _ = protocol.NewFrameMessage(failed)
	send(t, ws, msg)

	time.Sleep(150 * time.Millisecond)

	if frames.Load() != 2 {
		t.Fatalf("frames delivered = %d, want 2", frames.Load())
	}
	if id, _ := fromTracker.Load().(string); id != "frame-test" {
		t.Errorf("tracker ID = %q, want frame-test", id)
	}

	raw, ok := v.LastValidRawGaze()
	if !ok || raw != frame.Raw {
		t.Errorf("LastValidRawGaze() = %+v (ok=%v), want %+v", raw, ok, frame.Raw)
	}
	if _, ok := v.LastValidLeftEye(); !ok {
		t.Error("left eye should still be available from the first frame")
	}

	stats := hub.GetStats()
	if stats.FramesReceived != 2 || stats.ParseErrors != 1 || stats.MessagesReceived != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStatusAndPing(t *testing.T) {
	hub := NewHub(log.Discard())
	app := newTestApp(hub)

	var statusSeen atomic.Bool
	hub.OnStatus(func(trackerID string, status *protocol.StatusData) {
		statusSeen.Store(status.Calibrated)
	})

	go app.Listen(":18182")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws := dial(t, "ws://localhost:18182/ws/tracker/status-test")
	defer ws.Close()

	status, _ := protocol.NewStatusMessage(protocol.StatusData{
		Activated:   true,
		Calibrated:  true,
		Calibration: &calibration.Result{Succeeded: true, AverageErrorDegree: 0.6},
	})
	send(t, ws, status)

	ping, _ := protocol.NewPingMessage("p-1", 0)
	send(t, ws, ping)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	var reply protocol.Message
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if reply.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", reply.Type)
	}
	pong, err := reply.GetPongData()
	if err != nil || pong.ID != "p-1" {
		t.Errorf("pong = %+v, err = %v", pong, err)
	}

	if !statusSeen.Load() {
		t.Error("status callback should have seen calibrated=true")
	}

	tracker := hub.GetTracker("status-test")
	if tracker == nil {
		t.Fatal("tracker should be connected")
	}
	st, ok := tracker.Status()
	if !ok || !st.Activated {
		t.Errorf("Status() = %+v (ok=%v)", st, ok)
	}

	infos := hub.GetTrackerInfos()
	if len(infos) != 1 || infos[0].CalibrationRating != 4 || infos[0].CalibrationLabel != calibration.LabelGood {
		t.Errorf("infos = %+v", infos)
	}

	req := httptest.NewRequest("GET", "/api/trackers/status-test/status", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), "GOOD") {
		t.Errorf("status endpoint = %d %s", resp.StatusCode, body)
	}
}

func TestSendToUnknownTracker(t *testing.T) {
	hub := NewHub(log.Discard())

	if err := hub.SendPong("nonexistent", "x", 0); err == nil {
		t.Error("SendPong should fail for an unknown tracker")
	}
}

func TestAPIRoutes(t *testing.T) {
	app := newTestApp(NewHub(log.Discard()))

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/api/trackers/", 200, "trackers"},
		{"/api/trackers/stats", 200, "frames_received"},
		{"/api/trackers/missing/status", 404, "not connected"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body %q should contain %q", body, tt.wantBody)
			}
		})
	}
}
