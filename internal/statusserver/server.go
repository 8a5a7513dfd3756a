// Package statusserver mirrors session status over HTTP and websocket so an
// operator page can show connection state and the pairing QR without touching
// the process. It replaces nothing in the pipeline; the gateway works the same
// with it disabled.
package statusserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

type statusPayload struct {
	Kind   string    `json:"kind"`
	Reason string    `json:"reason,omitempty"`
	QR     string    `json:"qr,omitempty"`
	At     time.Time `json:"at"`
}

// client serializes writes; gorilla conns do not allow concurrent writers.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *statusPayload
	lastQR  string
}

func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish implements transport.StatusSink: the latest event is retained so a
// client connecting later still sees the current state and pairing QR.
func (s *Server) Publish(ev transport.StatusEvent) {
	payload := statusPayload{
		Kind:   string(ev.Kind),
		Reason: ev.Reason,
		At:     ev.At,
	}

	s.mu.Lock()
	switch ev.Kind {
	case transport.StatusPairingRequired:
		s.lastQR = ev.Payload
	case transport.StatusConnected:
		s.lastQR = ""
	}
	payload.QR = s.lastQR
	s.last = &payload

	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.writeJSON(payload); err != nil {
			s.drop(c)
		}
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		payload := s.last
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if payload == nil {
			_, _ = w.Write([]byte(`{"kind":"starting"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("status_ws_upgrade_failed", "error", err.Error())
		return
	}

	c := &client{conn: conn}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	last := s.last
	s.mu.Unlock()

	if last != nil {
		if err := c.writeJSON(*last); err != nil {
			s.drop(c)
			return
		}
	}

	// Drain the read side to observe the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(c)
				return
			}
		}
	}()
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// Serve runs the status server until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status_server_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
