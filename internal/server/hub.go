package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/alexjbarnes/fittrack/internal/metrics"
	"github.com/alexjbarnes/fittrack/internal/models"
)

// broadcastTimeout bounds one event write so a stalled client cannot
// block the upload that triggered the broadcast.
const broadcastTimeout = 5 * time.Second

type changeEvent struct {
	Op     string        `json:"op"`
	Domain models.Domain `json:"domain"`
}

type hubSession struct {
	id     string
	userID string
	conn   *websocket.Conn
}

// Hub fans change notifications out to a user's connected sessions.
// After any upsert, every other session of the same user is told which
// domain changed so it can resync instead of polling.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]map[string]*hubSession // userID -> sessionID
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]map[string]*hubSession),
	}
}

// Register adds a connection under the client's session identity and
// returns the session ID. The ID must match the X-Session-Id header the
// same client sends on uploads, otherwise Broadcast cannot exclude the
// originating session. A client that sends none gets a generated ID and
// will hear its own uploads.
func (h *Hub) Register(userID, sessionID string, conn *websocket.Conn) string {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session := &hubSession{
		id:     sessionID,
		userID: userID,
		conn:   conn,
	}

	h.mu.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[string]*hubSession)
	}
	h.sessions[userID][session.id] = session
	h.mu.Unlock()

	h.metrics.EventClients.Inc()
	h.logger.Debug("event client connected",
		slog.String("user_id", userID),
		slog.String("session_id", session.id),
	)

	return session.id
}

// Unregister removes a connection.
func (h *Hub) Unregister(userID, sessionID string) {
	h.mu.Lock()
	if sessions := h.sessions[userID]; sessions != nil {
		if _, ok := sessions[sessionID]; ok {
			delete(sessions, sessionID)
			h.metrics.EventClients.Dec()
		}

		if len(sessions) == 0 {
			delete(h.sessions, userID)
		}
	}
	h.mu.Unlock()
}

// Broadcast notifies all of a user's sessions except the originating
// one that a domain changed. excludeSession may be empty.
func (h *Hub) Broadcast(userID, excludeSession string, domain models.Domain) {
	payload, err := json.Marshal(changeEvent{Op: "changed", Domain: domain})
	if err != nil {
		return
	}

	h.mu.Lock()
	targets := make([]*hubSession, 0, len(h.sessions[userID]))
	for id, session := range h.sessions[userID] {
		if id == excludeSession {
			continue
		}

		targets = append(targets, session)
	}
	h.mu.Unlock()

	for _, session := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)

		if err := session.conn.Write(ctx, websocket.MessageText, payload); err != nil {
			h.logger.Debug("event write failed, dropping session",
				slog.String("user_id", userID),
				slog.String("session_id", session.id),
				slog.Any("error", err),
			)
			h.Unregister(userID, session.id)
		}

		cancel()
	}
}

// CloseAll tears down every connection, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*hubSession
	for _, sessions := range h.sessions {
		for _, session := range sessions {
			all = append(all, session)
		}
	}
	h.sessions = make(map[string]map[string]*hubSession)
	h.mu.Unlock()

	for _, session := range all {
		_ = session.conn.Close(websocket.StatusGoingAway, "server shutting down")
		h.metrics.EventClients.Dec()
	}
}
