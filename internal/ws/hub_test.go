package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/obiente/translate/batchscribe/internal/progress"
)

type message struct {
	Type string            `json:"type"`
	Data progress.Snapshot `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

// TestHubSendsCurrentThenPublished verifies a subscriber gets the current snapshot and later updates.
func TestHubSendsCurrentThenPublished(t *testing.T) {
	hub := NewHub(func() progress.Snapshot { return progress.Snapshot{RunID: "r1", Total: 3} }, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	first := read(t, conn)
	if first.Type != "progress" || first.Data.RunID != "r1" || first.Data.Completed != 0 {
		t.Fatalf("first = %+v", first)
	}
	if hub.Clients() != 1 {
		t.Fatalf("clients = %d, want 1", hub.Clients())
	}

	hub.Publish(progress.Snapshot{RunID: "r1", Total: 3, Completed: 1, LastPath: "/a.wav"})
	next := read(t, conn)
	if next.Data.Completed != 1 || next.Data.LastPath != "/a.wav" {
		t.Fatalf("next = %+v", next)
	}
}

// TestHubCloseEndsStreams verifies Close sends a close frame to subscribers.
func TestHubCloseEndsStreams(t *testing.T) {
	hub := NewHub(func() progress.Snapshot { return progress.Snapshot{} }, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	read(t, conn)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read after close = %v, want normal closure", err)
	}
	if hub.Clients() != 0 {
		t.Fatalf("clients = %d, want 0", hub.Clients())
	}
}
