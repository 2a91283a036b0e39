package dispatch

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// WSSession represents a connected donor session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(req ContactRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(req)
}

// WSRegistry holds donor sessions
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(donorID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[donorID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Notify(donorID string, req ContactRequest) error {
	r.mu.RLock()
	s, ok := r.sessions[donorID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(req); err != nil {
		log.Printf("ws send error: %v", err)
		return err
	}
	return nil
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
