package testutil

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *connWrapper) writeJSON(v interface{}) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(v)
}

// RelayFrame is one JSON frame of the relay protocol.
type RelayFrame struct {
	Type        string    `json:"type"`
	ID          string    `json:"id,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Text        string    `json:"text,omitempty"`
	AccessToken string    `json:"access_token,omitempty"`
	ReceivedAt  time.Time `json:"-"`
}

// MockRelayServer simulates the relay: it runs the auth handshake, lets
// tests push messages to connected clients, and records every frame the
// clients send.
type MockRelayServer struct {
	server *httptest.Server
	token  string

	connsMu      sync.Mutex
	connections  []*connWrapper
	authAttempts int
	rejectAuth   bool

	framesMu sync.Mutex
	frames   []RelayFrame
}

// NewMockRelayServer starts a relay server accepting token.
func NewMockRelayServer(token string) *MockRelayServer {
	s := &MockRelayServer{token: token}
	s.server = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	return s
}

// URL returns the ws:// address of the server.
func (s *MockRelayServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// Close disconnects all clients and stops the server.
func (s *MockRelayServer) Close() {
	s.DropConnections()
	s.server.Close()
}

// SetRejectAuth makes the server answer every auth with auth_invalid.
func (s *MockRelayServer) SetRejectAuth(reject bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.rejectAuth = reject
}

// AuthAttempts counts auth frames received.
func (s *MockRelayServer) AuthAttempts() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return s.authAttempts
}

// Connections counts authenticated clients.
func (s *MockRelayServer) Connections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.connections)
}

// WaitForConnections waits until n clients are authenticated.
func (s *MockRelayServer) WaitForConnections(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Connections() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Connections() >= n
}

// DropConnections closes every client connection.
func (s *MockRelayServer) DropConnections() {
	s.connsMu.Lock()
	wrappers := s.connections
	s.connections = nil
	s.connsMu.Unlock()

	for _, w := range wrappers {
		w.conn.Close()
	}
}

// Send writes frame to every authenticated client.
func (s *MockRelayServer) Send(frame RelayFrame) error {
	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	if len(wrappers) == 0 {
		return errors.New("no relay clients connected")
	}
	var errs []error
	for _, w := range wrappers {
		errs = append(errs, w.writeJSON(frame))
	}
	return errors.Join(errs...)
}

// SendMessage delivers a text message from a peer.
func (s *MockRelayServer) SendMessage(id, from, text string) error {
	return s.Send(RelayFrame{Type: "message", ID: id, From: from, Text: text})
}

// Frames returns every frame received from clients after authentication.
func (s *MockRelayServer) Frames() []RelayFrame {
	s.framesMu.Lock()
	defer s.framesMu.Unlock()
	frames := make([]RelayFrame, len(s.frames))
	copy(frames, s.frames)
	return frames
}

// ClearFrames resets the frame log.
func (s *MockRelayServer) ClearFrames() {
	s.framesMu.Lock()
	defer s.framesMu.Unlock()
	s.frames = nil
}

// WaitForFrames waits until n frames of the given type have arrived and
// returns them, or returns what arrived by the timeout.
func (s *MockRelayServer) WaitForFrames(frameType string, n int, timeout time.Duration) []RelayFrame {
	deadline := time.Now().Add(timeout)
	for {
		frames := FilterFrames(s.Frames(), frameType)
		if len(frames) >= n || time.Now().After(deadline) {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *MockRelayServer) record(frame RelayFrame) {
	frame.ReceivedAt = time.Now()
	s.framesMu.Lock()
	s.frames = append(s.frames, frame)
	s.framesMu.Unlock()
}

// handleWebSocket handles WebSocket connections
func (s *MockRelayServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	wrapper := &connWrapper{conn: conn}

	defer func() {
		s.connsMu.Lock()
		for i, w := range s.connections {
			if w == wrapper {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.writeJSON(RelayFrame{Type: "auth_required"})

	var auth RelayFrame
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}

	s.connsMu.Lock()
	s.authAttempts++
	reject := s.rejectAuth || auth.Type != "auth" || auth.AccessToken != s.token
	if !reject {
		s.connections = append(s.connections, wrapper)
	}
	s.connsMu.Unlock()

	if reject {
		wrapper.writeJSON(RelayFrame{Type: "auth_invalid"})
		return
	}
	wrapper.writeJSON(RelayFrame{Type: "auth_ok"})

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return
		}
		var frame RelayFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		s.record(frame)

		if frame.Type == "ping" {
			wrapper.writeJSON(RelayFrame{Type: "pong", ID: frame.ID})
		}
	}
}
