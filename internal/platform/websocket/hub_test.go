package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 8)}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", "session/a")

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("session/a") != 1 {
		t.Fatalf("expected 1 client on session/a, got %d/%d", hub.ClientCount(), hub.TopicCount("session/a"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("session/a") != 0 {
		t.Fatalf("expected empty hub, got %d/%d", hub.ClientCount(), hub.TopicCount("session/a"))
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send channel to be closed")
	}

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := newClient("sub", "session/a")
	other := newClient("other", "session/b")
	hub.Register(sub)
	hub.Register(other)

	hub.Broadcast("session/a", Event{Type: "record.updated", Topic: "session/a", SessionID: "a", Version: 3})

	select {
	case msg := <-sub.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != "record.updated" || ev.SessionID != "a" || ev.Version != 3 {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("subscriber did not receive the event")
	}
	select {
	case <-other.Send:
		t.Fatal("non-subscriber received the event")
	default:
	}
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"session/a"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast("session/a", Event{Type: "one"})
	hub.Broadcast("session/a", Event{Type: "two"})

	if len(client.Send) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(client.Send))
	}
}

func TestHub_PublishStampsTime(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", "session/a")
	hub.Register(client)

	if err := hub.Publish(context.Background(), Event{Type: "record.reset", Topic: "session/a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(<-client.Send, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"session/a", "session/b", "session/a"}})
	if len(client.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %v", client.Topics)
	}
	if hub.TopicCount("session/a") != 1 || hub.TopicCount("session/b") != 1 {
		t.Fatal("expected one subscriber per topic")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"session/a"}})
	if hub.TopicCount("session/a") != 0 {
		t.Error("expected session/a to be empty")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "session/b" {
		t.Errorf("unexpected topics: %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "bogus", Topics: []string{"session/c"}})
	if hub.TopicCount("session/c") != 0 {
		t.Error("unknown action must be ignored")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c", "session/x")
			hub.Register(c)
			hub.Broadcast("session/x", Event{Type: "record.updated"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://app.example"}, "", true},
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"listed", []string{"https://app.example/"}, "https://app.example", true},
		{"same host", []string{"https://app.example"}, "http://example.com", true},
		{"foreign", []string{"https://app.example"}, "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	e := echo.New()
	h := NewHandler(NewHub(zerolog.Nop()), nil, "session/")
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	if err := h.HandleConnect(e.NewContext(req, rec)); err == nil && rec.Code < 400 {
		t.Errorf("expected upgrade failure, got %d", rec.Code)
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil, "session/").RegisterRoutes(e)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	msg := ClientMessage{Action: "subscribe", Topics: []string{"session/abc", "admin/all"}}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("session/abc") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("session/abc") != 1 {
		t.Fatalf("expected 1 subscriber on session/abc, got %d", hub.TopicCount("session/abc"))
	}
	if hub.TopicCount("admin/all") != 0 {
		t.Fatal("topics outside the prefix must be refused")
	}

	hub.Publish(context.Background(), Event{Type: "generation.completed", Topic: "session/abc", SessionID: "abc"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "generation.completed" || received.SessionID != "abc" {
		t.Fatalf("unexpected event: %+v", received)
	}
}

type frame struct {
	kind int
	data []byte
}

// fakeConn feeds inbound frames from a channel and records outbound ones.
type fakeConn struct {
	in     chan []byte
	out    chan frame
	mu     sync.Mutex
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 4), out: make(chan frame, 8)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.in
	if !ok {
		return 0, nil, gorillawebsocket.ErrCloseSent
	}
	return gorillawebsocket.TextMessage, msg, nil
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	f.out <- frame{kind, data}
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) nextFrame(t *testing.T) frame {
	t.Helper()
	select {
	case fr := <-f.out:
		return fr
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written")
		return frame{}
	}
}

func TestHandler_PumpsUseClientConn(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewHandler(hub, nil, "session/")
	conn := newFakeConn()
	client := &Client{ID: "page", Send: make(chan []byte, 8), conn: conn}
	h.serve(client)

	conn.in <- []byte(`{"action":"subscribe","topics":["session/abc","admin/all"]}`)
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("session/abc") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("session/abc") != 1 || hub.TopicCount("admin/all") != 0 {
		t.Fatalf("unexpected subscriptions: %v", client.Topics)
	}

	hub.Publish(context.Background(), Event{Type: "record.updated", Topic: "session/abc", Version: 2})
	fr := conn.nextFrame(t)
	var ev Event
	if err := json.Unmarshal(fr.data, &ev); err != nil || fr.kind != gorillawebsocket.TextMessage {
		t.Fatalf("unexpected frame %d %q: %v", fr.kind, fr.data, err)
	}
	if ev.Type != "record.updated" || ev.Version != 2 {
		t.Errorf("unexpected event: %+v", ev)
	}

	close(conn.in)
	if fr := conn.nextFrame(t); fr.kind != gorillawebsocket.CloseMessage {
		t.Errorf("expected close frame after read failure, got kind %d", fr.kind)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected client unregistered, got %d", hub.ClientCount())
	}
	deadline = time.Now().Add(2 * time.Second)
	for !conn.isClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !conn.isClosed() {
		t.Error("expected connection closed")
	}
}
