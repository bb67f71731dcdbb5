package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/events"
)

// dialFeed opens the live feed as u against a running test server.
func dialFeed(t *testing.T, env *testEnv, u *auth.User) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	header := http.Header{}
	header.Set("Cookie", env.cookieFor(t, u).String())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return msg
}

func TestWebSocketRequiresAdmin(t *testing.T) {
	env := testServer(t)
	client := env.addUser(t, "member@example.com", auth.RoleClient, false)

	_, resp, err := dialFeed(t, env, client)
	if err == nil {
		t.Fatal("Dial() should fail for a client")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestWebSocketSubscribeAndEmit(t *testing.T) {
	env := testServer(t)
	admin := env.addUser(t, "admin@example.com", auth.RoleAdmin, false)

	ctx := runHub(t, env)

	conn, _, err := dialFeed(t, env, admin)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{events.TypeAttendanceCheckedIn}},
	}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	// Not subscribed: must not arrive.
	if err := env.srv.Hub().Emit(ctx, events.Event{Type: events.TypePaymentRecorded, UserID: "usr-x"}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if err := env.srv.Hub().Emit(ctx, events.Event{
		Type:   events.TypeAttendanceCheckedIn,
		UserID: "usr-1",
		Data:   map[string]any{"name": "Dana"},
	}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != events.TypeAttendanceCheckedIn {
		t.Fatalf("event = %+v", msg)
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if !strings.Contains(string(raw), "usr-1") {
		t.Errorf("payload = %s, want the member id", raw)
	}
}

// runHub runs the server's hub for the duration of the test.
func runHub(t *testing.T, env *testEnv) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.srv.hub.Run(ctx)
	return ctx
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketPing(t *testing.T) {
	env := testServer(t)
	admin := env.addUser(t, "admin@example.com", auth.RoleAdmin, false)
	runHub(t, env)

	conn, _, err := dialFeed(t, env, admin)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "p" {
		t.Errorf("reply = %+v, want pong", msg)
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://gym.local", true},
		{"https://GYM.local", true},
		{"http://evil.example", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://gym.local/api/v1/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := sameOrigin(r); got != tt.want {
			t.Errorf("sameOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestHubEmitWithoutClients(t *testing.T) {
	env := testServer(t)

	if err := env.srv.Hub().Emit(context.Background(), events.Event{Type: events.TypeUserCreated}); err != nil {
		t.Errorf("Emit() error: %v", err)
	}
	if n := env.srv.Hub().ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want 0", n)
	}
}

func TestWebSocketWildcardAndShutdown(t *testing.T) {
	env := testServer(t)
	admin := env.addUser(t, "admin@example.com", auth.RoleAdmin, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.hub.Run(ctx)

	conn, _, err := dialFeed(t, env, admin)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	waitForClients(t, env.srv.Hub(), 1)

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "all",
		Payload: WSSubscribePayload{Channels: []string{"*"}},
	}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	readMessage(t, conn)

	if err := env.srv.Hub().Emit(ctx, events.Event{Type: events.TypePaymentRecorded, UserID: "usr-2"}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if msg := readMessage(t, conn); msg.EventType != events.TypePaymentRecorded {
		t.Errorf("event = %+v, want payment", msg)
	}

	cancel()
	waitForClients(t, env.srv.Hub(), 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after hub shutdown")
	}
}

func TestWebSocketUnknownMessage(t *testing.T) {
	env := testServer(t)
	admin := env.addUser(t, "admin@example.com", auth.RoleAdmin, false)
	runHub(t, env)

	conn, _, err := dialFeed(t, env, admin)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: "dance", ID: "d"}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError || msg.ID != "d" {
		t.Errorf("reply = %+v, want error", msg)
	}
}
