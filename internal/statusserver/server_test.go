package statusserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(slog.New(slog.NewTextHandler(discardWriter{}, nil)))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("GET /health = %d %q", resp.StatusCode, body)
	}
}

func TestStatusSnapshotReflectsLastEvent(t *testing.T) {
	s, ts := newTestServer(t)

	s.Publish(transport.StatusEvent{Kind: transport.StatusPairingRequired, Payload: "qr-data", At: time.Now()})

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Kind string `json:"kind"`
		QR   string `json:"qr"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if payload.Kind != "pairing_required" || payload.QR != "qr-data" {
		t.Fatalf("/status = %+v, want pairing_required with qr", payload)
	}
}

func TestConnectedClearsRetainedQR(t *testing.T) {
	s, ts := newTestServer(t)

	s.Publish(transport.StatusEvent{Kind: transport.StatusPairingRequired, Payload: "qr-data", At: time.Now()})
	s.Publish(transport.StatusEvent{Kind: transport.StatusConnected, At: time.Now()})

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Kind string `json:"kind"`
		QR   string `json:"qr"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if payload.Kind != "connected" || payload.QR != "" {
		t.Fatalf("/status = %+v, want connected with no qr", payload)
	}
}

func TestWebsocketClientReceivesRetainedAndLiveEvents(t *testing.T) {
	s, ts := newTestServer(t)

	s.Publish(transport.StatusEvent{Kind: transport.StatusConnected, At: time.Now()})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Kind string `json:"kind"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read retained event: %v", err)
	}
	if first.Kind != "connected" {
		t.Fatalf("retained event kind = %q, want connected", first.Kind)
	}

	s.Publish(transport.StatusEvent{Kind: transport.StatusDisconnected, Reason: "conflict", At: time.Now()})

	var second struct {
		Kind   string `json:"kind"`
		Reason string `json:"reason"`
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read live event: %v", err)
	}
	if second.Kind != "disconnected" || second.Reason != "conflict" {
		t.Fatalf("live event = %+v, want disconnected/conflict", second)
	}
}

func TestPublishWithoutClients(t *testing.T) {
	s := New(slog.New(slog.NewTextHandler(discardWriter{}, nil)))
	// Must not block or panic.
	s.Publish(transport.StatusEvent{Kind: transport.StatusFault, Reason: "transport start: eof", At: time.Now()})
}
