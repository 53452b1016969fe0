package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"tap-racer/internal/auth"
	"tap-racer/internal/broadcast"
	"tap-racer/internal/lobby"
	"tap-racer/internal/protocol"
	"tap-racer/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	ensureTimeout  = 3 * time.Second
)

// UserStore resolves the durable profile of a verified identity.
type UserStore interface {
	EnsureUser(ctx context.Context, id, username string, initialRating int) (*store.User, error)
}

type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	sessionID string
}

type Server struct {
	lobby         *lobby.Lobby
	hub           *broadcast.Hub
	tokens        *auth.Manager
	users         UserStore
	defaultRating int
	sendBuffer    int
	upgrader      websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
}

func NewServer(l *lobby.Lobby, hub *broadcast.Hub, tokens *auth.Manager, users UserStore, defaultRating, sendBuffer int) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Server{
		lobby:         l,
		hub:           hub,
		tokens:        tokens,
		users:         users,
		defaultRating: defaultRating,
		sendBuffer:    sendBuffer,
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:       map[string]*Client{},
	}
}

// HandleWS authenticates the request, upgrades it and runs the session until
// the connection drops.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Verify(auth.TokenFromRequest(r))
	if err != nil {
		metricAuthFailures.Add(1)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ensureTimeout)
	user, err := s.users.EnsureUser(ctx, claims.UserID, claims.Username, s.defaultRating)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("ensure user failed")
		http.Error(w, "user_unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Client{
		conn:      conn,
		send:      make(chan []byte, s.sendBuffer),
		userID:    user.ID,
		sessionID: store.NewID(),
	}
	s.register(c, lobby.Profile{UserID: user.ID, Username: user.Username, Rating: user.Rating})

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) register(c *Client, p lobby.Profile) {
	s.mu.Lock()
	s.clients[c.sessionID] = c
	s.mu.Unlock()
	s.hub.Register(c.sessionID, c.send)
	metricSessionsActive.Add(1)

	if prev := s.lobby.Connect(context.Background(), p, c.sessionID); prev != "" {
		s.supersede(prev)
	}
	s.hub.Send(c.sessionID, protocol.Encode(protocol.Connected{
		Type:            "connected",
		ProtocolVersion: protocol.ProtocolVersion,
		UserID:          p.UserID,
		Username:        p.Username,
		Rating:          p.Rating,
		SessionID:       c.sessionID,
	}))
	log.Info().Str("user_id", p.UserID).Str("session_id", c.sessionID).Msg("session_connected")
}

// supersede tells the old session it has been replaced and closes it once
// its queue drains.
func (s *Server) supersede(sessionID string) {
	s.hub.Send(sessionID, protocol.Encode(protocol.NewNotice("session_superseded", "", "")))
	s.hub.Unregister(sessionID)
	s.mu.Lock()
	old := s.clients[sessionID]
	s.mu.Unlock()
	if old != nil {
		safeClose(old.send)
	}
}

func (s *Server) readLoop(c *Client) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session_id", c.sessionID).Msg("ws read closed")
			}
			return
		}
		s.dispatch(context.Background(), c, msg)
	}
}

func (s *Server) writeLoop(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.sessionID)
	s.mu.Unlock()
	s.hub.Unregister(c.sessionID)
	s.lobby.Disconnect(context.Background(), c.userID, c.sessionID)
	safeClose(c.send)
	metricSessionsActive.Add(-1)
	log.Info().Str("user_id", c.userID).Str("session_id", c.sessionID).Msg("session_closed")
}

func safeClose(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}
