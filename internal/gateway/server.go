// Package gateway exposes the orchestrator's event stream to external
// observers over websocket. It is observability-only: connected clients
// receive events, they cannot mutate anything.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/wibisana/lakon/pkg/events"
)

// Server streams hub events to websocket clients.
type Server struct {
	addr   string
	hub    *events.Hub
	logger zerolog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.RWMutex
	clients map[string]*websocket.Conn

	cancelSub func()
	stopCh    chan struct{}
}

// NewServer creates a gateway bound to addr, fed by hub.
func NewServer(addr string, hub *events.Hub, logger zerolog.Logger) *Server {
	return &Server{
		addr:   addr,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*websocket.Conn),
		stopCh:  make(chan struct{}),
	}
}

// Start begins accepting connections and forwarding events. It returns
// once the listener is running; serving continues in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ch, cancel := s.hub.Subscribe("", 256)
	s.cancelSub = cancel
	go s.forward(ch)

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	s.logger.Info().Str("addr", s.addr).Msg("Gateway listening")
	return nil
}

// Stop closes the listener and all client connections.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopCh)
	if s.cancelSub != nil {
		s.cancelSub()
	}

	s.mu.Lock()
	for id, conn := range s.clients {
		conn.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	clientID, _ := gonanoid.New()

	s.mu.Lock()
	s.clients[clientID] = conn
	s.mu.Unlock()

	s.logger.Debug().Str("client_id", clientID).Msg("Gateway client connected")

	// Drain reads so pings/closes are processed; drop the client on error.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
			conn.Close()
			s.logger.Debug().Str("client_id", clientID).Msg("Gateway client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// forward pushes every hub event to every connected client. Failed
// writes drop the client; transport trouble never reaches the
// orchestrator.
func (s *Server) forward(ch <-chan events.Event) {
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(evt)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) broadcast(evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error().Err(err).Str("event", evt.Name).Msg("Failed to marshal event")
		return
	}

	s.mu.RLock()
	conns := make(map[string]*websocket.Conn, len(s.clients))
	for id, c := range s.clients {
		conns[id] = c
	}
	s.mu.RUnlock()

	for id, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Warn().
				Err(err).
				Str("client_id", id).
				Str("event", evt.Name).
				Msg("Failed to write to client")
			s.mu.Lock()
			delete(s.clients, id)
			s.mu.Unlock()
			conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
