package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), want)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitForClients(t, hub, 1)

	hub.Broadcast(RefreshHint{Table: "listings", Stale: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var hint RefreshHint
	if err := json.Unmarshal(payload, &hint); err != nil {
		t.Fatalf("invalid hint payload: %v", err)
	}
	if hint.Table != "listings" || !hint.Stale {
		t.Errorf("received hint %+v, want listings/stale", hint)
	}
}

func TestHubRemovesDisconnectedClient(t *testing.T) {
	hub := NewHub([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting into an empty hub must not panic.
	hub.Broadcast(RefreshHint{Table: "listings"})
}

func TestHubOriginCheck(t *testing.T) {
	hub := NewHub([]string{"https://app.example.com"})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	tests := []struct {
		name     string
		origin   string
		wantFail bool
	}{
		{
			name:   "Allowed origin connects",
			origin: "https://app.example.com",
		},
		{
			name:   "No origin header connects",
			origin: "",
		},
		{
			name:     "Foreign origin rejected",
			origin:   "https://evil.example.com",
			wantFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}

			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
			if tt.wantFail {
				if err == nil {
					conn.Close()
					t.Fatal("handshake succeeded for a foreign origin")
				}
				return
			}
			if err != nil {
				t.Fatalf("handshake failed: %v", err)
			}
			conn.Close()
		})
	}
}
