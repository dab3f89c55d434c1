package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/otiai10/kakehashi/internal/auth"
	"github.com/otiai10/kakehashi/internal/bus"
)

// wsHarness is a WebSocket server that records inbound frames and lets
// the test push frames back.
type wsHarness struct {
	*httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	upgrades int
	received []frame
}

func newWSHarness(t *testing.T) *wsHarness {
	h := &wsHarness{}
	upgrader := websocket.Upgrader{}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		h.mu.Lock()
		h.conn = conn
		h.upgrades++
		h.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			h.mu.Lock()
			h.received = append(h.received, f)
			h.mu.Unlock()
		}
	}))
	t.Cleanup(h.Server.Close)
	return h
}

func (h *wsHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.URL, "http")
}

func (h *wsHarness) push(t *testing.T, f frame) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		conn := h.conn
		h.mu.Unlock()
		if conn != nil {
			data, _ := json.Marshal(f)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.Fatalf("push failed: %v", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no client connected within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *wsHarness) frames() []frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]frame(nil), h.received...)
}

func (h *wsHarness) connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.upgrades
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestRelay_ForwardsLocalTraffic verifies that a locally published
// request goes out as a frame.
func TestRelay_ForwardsLocalTraffic(t *testing.T) {
	h := newWSHarness(t)
	b := bus.New()
	defer b.Close()

	r, err := NewRelay(h.wsURL(), b, []string{auth.TopicAuthRequest}, []string{auth.TopicAuthResponse})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	b.Publish(auth.TopicAuthRequest, bus.Payload{auth.KeyRequestID: "req-1", auth.KeyAction: string(auth.ActionSignOut)})

	waitFor(t, func() bool { return len(h.frames()) >= 1 })
	f := h.frames()[0]
	if f.Name != auth.TopicAuthRequest || f.Payload[auth.KeyRequestID] != "req-1" {
		t.Errorf("unexpected frame: %+v", f)
	}
}

// TestRelay_RepublishesAcceptedFrames verifies that an inbound frame on
// an accepted topic reaches local observers.
func TestRelay_RepublishesAcceptedFrames(t *testing.T) {
	h := newWSHarness(t)
	b := bus.New()
	defer b.Close()

	var mu sync.Mutex
	var got []bus.Payload
	b.AddObserver(auth.TopicAuthResponse, func(p bus.Payload) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	r, err := NewRelay(h.wsURL(), b, []string{auth.TopicAuthRequest}, []string{auth.TopicAuthResponse})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	h.push(t, frame{Name: auth.TopicAuthResponse, Payload: map[string]any{auth.KeyRequestID: "req-1", auth.KeyStatus: auth.StatusSuccess}})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0][auth.KeyRequestID] != "req-1" {
		t.Errorf("unexpected payload: %v", got[0])
	}
}

// TestRelay_DropsUnacceptedFrames verifies that inbound frames outside
// the accept set are ignored.
func TestRelay_DropsUnacceptedFrames(t *testing.T) {
	h := newWSHarness(t)
	b := bus.New()
	defer b.Close()

	var mu sync.Mutex
	republished := 0
	b.AddObserver(auth.TopicAuthRequest, func(bus.Payload) {
		mu.Lock()
		republished++
		mu.Unlock()
	})

	r, err := NewRelay(h.wsURL(), b, nil, []string{auth.TopicAuthResponse})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	h.push(t, frame{Name: auth.TopicAuthRequest, Payload: map[string]any{auth.KeyRequestID: "req-1"}})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if republished != 0 {
		t.Errorf("unaccepted frame was republished %d times", republished)
	}
}

// TestRelay_SuppressesRepeatedFrames verifies that a correlated frame
// re-sent by the remote peer is republished only once.
func TestRelay_SuppressesRepeatedFrames(t *testing.T) {
	h := newWSHarness(t)
	b := bus.New()
	defer b.Close()

	var mu sync.Mutex
	republished := 0
	b.AddObserver(auth.TopicAuthResponse, func(bus.Payload) {
		mu.Lock()
		republished++
		mu.Unlock()
	})

	r, err := NewRelay(h.wsURL(), b, nil, []string{auth.TopicAuthResponse})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	repeated := frame{Name: auth.TopicAuthResponse, Payload: map[string]any{auth.KeyRequestID: "req-1", auth.KeyStatus: auth.StatusSuccess}}
	h.push(t, repeated)
	h.push(t, repeated)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return republished >= 1
	})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if republished != 1 {
		t.Errorf("repeated frame republished %d times, want 1", republished)
	}
}

// TestRelay_UncorrelatedFramesNotSuppressed verifies that frames
// without a requestId (auth-state broadcasts) are never deduplicated:
// signing out and back in legitimately repeats the same snapshot.
func TestRelay_UncorrelatedFramesNotSuppressed(t *testing.T) {
	h := newWSHarness(t)
	b := bus.New()
	defer b.Close()

	var mu sync.Mutex
	republished := 0
	b.AddObserver(auth.TopicAuthState, func(bus.Payload) {
		mu.Lock()
		republished++
		mu.Unlock()
	})

	r, err := NewRelay(h.wsURL(), b, nil, []string{auth.TopicAuthState})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	snapshot := frame{Name: auth.TopicAuthState, Payload: map[string]any{auth.KeyUID: "u1"}}
	h.push(t, snapshot)
	h.push(t, snapshot)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return republished >= 2
	})
}

// TestRelay_PeriodicRefresh verifies the scheduled re-dial: the relay
// reconnects on its refresh interval without dropping the relay itself.
func TestRelay_PeriodicRefresh(t *testing.T) {
	h := newWSHarness(t)
	b := bus.New()
	defer b.Close()

	r, err := NewRelay(h.wsURL(), b, []string{auth.TopicAuthRequest}, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	r.refreshEvery = 50 * time.Millisecond
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	waitFor(t, func() bool { return h.connections() >= 2 })
}

// TestNewRelay_RejectsOverlappingTopics verifies the echo guard.
func TestNewRelay_RejectsOverlappingTopics(t *testing.T) {
	b := bus.New()
	defer b.Close()

	_, err := NewRelay("ws://example.com/ws", b, []string{auth.TopicAuthRequest}, []string{auth.TopicAuthRequest})
	if err == nil {
		t.Fatal("expected overlap rejection")
	}
	if _, err := NewRelay("", b, nil, nil); err == nil {
		t.Fatal("expected empty endpoint rejection")
	}
}

// TestRelay_CloseStopsForwarding verifies that observers are removed on
// Close so later publishes stay local.
func TestRelay_CloseStopsForwarding(t *testing.T) {
	h := newWSHarness(t)
	b := bus.New()
	defer b.Close()

	r, err := NewRelay(h.wsURL(), b, []string{auth.TopicAuthRequest}, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b.Publish(auth.TopicAuthRequest, bus.Payload{auth.KeyRequestID: "req-1"})
	time.Sleep(50 * time.Millisecond)

	if n := len(h.frames()); n != 0 {
		t.Errorf("expected no frames after Close, got %d", n)
	}
}
