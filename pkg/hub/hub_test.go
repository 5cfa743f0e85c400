package hub

import (
	"context"
	"testing"
	"time"
)

func TestHub_RunLifecycle(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.IsRunning() {
		t.Fatal("hub should be running")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return after cancel")
	}
	if h.IsRunning() {
		t.Error("hub should report stopped")
	}

	// Registration after stop must not block.
	if c := NewClient(h, nil); c != nil {
		t.Error("NewClient on a stopped hub should return nil")
	}
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	h := New("full")

	// Nothing drains the queue, so the buffer fills up.
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.Broadcast(Message{Data: []byte(`{}`)})
	}
	if h.Dropped() != 5 {
		t.Errorf("Dropped() = %d, want 5", h.Dropped())
	}
}

func TestHub_BroadcastJSON(t *testing.T) {
	h := New("json")

	if err := h.BroadcastJSON(map[string]int{"seq": 1}); err != nil {
		t.Fatalf("BroadcastJSON error: %v", err)
	}
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("BroadcastJSON should fail for unencodable values")
	}

	msg := <-h.broadcast
	if msg.Seq != 0 || string(msg.Data) != `{"seq":1}` {
		t.Errorf("queued message = %+v", msg)
	}
}

func TestHub_SequencedBroadcast(t *testing.T) {
	h := New("seq")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	for _, seq := range []uint64{3, 2, 3, 5, 4} {
		if err := h.BroadcastSeq(seq, map[string]uint64{"seq": seq}); err != nil {
			t.Fatalf("BroadcastSeq error: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if last, ok := h.Last(); ok && last.Seq == 5 && len(h.broadcast) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	last, ok := h.Last()
	if !ok || last.Seq != 5 || string(last.Data) != `{"seq":5}` {
		t.Errorf("Last() = %+v (ok=%v), want seq 5", last, ok)
	}
}

func TestMessage_OlderThan(t *testing.T) {
	last := &Message{Seq: 4}
	tests := []struct {
		seq  uint64
		last *Message
		want bool
	}{
		{5, last, false},
		{4, last, true},
		{3, last, true},
		{0, last, false},
		{1, nil, false},
	}

	for _, tt := range tests {
		if got := (Message{Seq: tt.seq}).olderThan(tt.last); got != tt.want {
			t.Errorf("Message{Seq: %d}.olderThan(%v) = %v, want %v", tt.seq, tt.last, got, tt.want)
		}
	}
}

func runHub(t *testing.T, name string) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New(name)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.IsRunning() {
		t.Fatal("hub should be running")
	}
	return h, cancel
}

// attach registers a connectionless client, which is enough to drive the
// hub loop and command handling.
func attach(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message queued")
		return Message{}
	}
}

func waitClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.ClientCount(); got != want {
		t.Fatalf("ClientCount() = %d, want %d", got, want)
	}
}

func TestClient_PauseResume(t *testing.T) {
	h, _ := runHub(t, "viewer")
	c := attach(h, 4)

	if err := h.BroadcastSeq(7, map[string]int{"seq": 7}); err != nil {
		t.Fatalf("BroadcastSeq error: %v", err)
	}
	if msg := recv(t, c); msg.Seq != 7 {
		t.Fatalf("broadcast seq = %d, want 7", msg.Seq)
	}

	tests := []struct {
		cmd        string
		known      bool
		wantPaused bool
	}{
		{"pause", true, true},
		{" PAUSE\n", true, true},
		{"zoom", false, true},
		{"resume", true, false},
	}

	for _, tt := range tests {
		if got := c.handleCommand(tt.cmd); got != tt.known {
			t.Errorf("handleCommand(%q) = %v, want %v", tt.cmd, got, tt.known)
		}
		if c.Paused() != tt.wantPaused {
			t.Errorf("after %q Paused() = %v, want %v", tt.cmd, c.Paused(), tt.wantPaused)
		}
	}

	if msg := recv(t, c); msg.Seq != 7 {
		t.Errorf("resume replayed seq %d, want 7", msg.Seq)
	}

	// Resuming while not paused queues nothing.
	c.handleCommand(CommandResume)
	time.Sleep(20 * time.Millisecond)
	if len(c.send) != 0 {
		t.Error("resume without pause should not queue a replay")
	}
}

func TestClient_ResumeAfterSlowDrop(t *testing.T) {
	h, _ := runHub(t, "slow")
	c := attach(h, 1)
	waitClients(t, h, 1)

	// The first message fills the buffer; the second gets the viewer dropped
	// and its send channel closed.
	h.BroadcastSeq(1, map[string]int{"seq": 1})
	h.BroadcastSeq(2, map[string]int{"seq": 2})
	waitClients(t, h, 0)

	c.handleCommand(CommandPause)
	c.handleCommand(CommandResume)

	// The hub loop must have survived the replay request.
	if err := h.BroadcastSeq(3, map[string]int{"seq": 3}); err != nil {
		t.Fatalf("BroadcastSeq error: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if last, ok := h.Last(); ok && last.Seq == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("hub stopped processing broadcasts after a resume from a dropped viewer")
}

func TestClient_ResumeAfterHubStopped(t *testing.T) {
	h, cancel := runHub(t, "stopped")
	c := attach(h, 4)
	h.BroadcastSeq(1, map[string]int{"seq": 1})
	recv(t, c)

	c.handleCommand(CommandPause)
	cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		c.handleCommand(CommandResume)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resume blocked on a stopped hub")
	}
}
