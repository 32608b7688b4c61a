package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"eventscope/internal/bus"
	"eventscope/internal/model"
)

// streamEnvelope is the wire shape pushed to websocket clients.
type streamEnvelope struct {
	Kind  model.Kind  `json:"kind"`
	Event model.Event `json:"event"`
}

// EventStream pushes every decoded event to connected websocket clients. It
// subscribes to the bus on construction and unsubscribes on Close.
type EventStream struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	cancel  func()
}

// NewEventStream subscribes a broadcaster to the bus.
func NewEventStream(eventBus *bus.Bus, logger *zap.Logger) *EventStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EventStream{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
	s.cancel = eventBus.Subscribe(s.broadcast)
	return s
}

// Handler accepts websocket connections and keeps them registered until the
// peer goes away.
func (s *EventStream) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		// Read loop only to observe the close handshake.
		go func() {
			defer s.drop(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// Close unsubscribes from the bus and closes every client connection.
func (s *EventStream) Close() {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
}

func (s *EventStream) broadcast(event model.Event) {
	payload, err := json.Marshal(streamEnvelope{Kind: event.Kind(), Event: event})
	if err != nil {
		s.logger.Error("marshal event failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.logger.Debug("websocket write failed, dropping client", zap.Error(err))
			_ = conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *EventStream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}
