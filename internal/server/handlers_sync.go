package server

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/alexjbarnes/fittrack/internal/auth"
	"github.com/alexjbarnes/fittrack/internal/models"
)

type entriesEnvelope struct {
	Entries []models.WireEntry `json:"entries"`
}

type favoritesEnvelope struct {
	Favorites []models.WireFavorite `json:"favorites"`
}

func (s *Server) handleGetEntries(domain models.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())

		entries, err := s.store.Entries(r.Context(), claims.UserID, domain)
		if err != nil {
			s.writeStoreError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, entriesEnvelope{Entries: entries})
	}
}

func (s *Server) handlePostEntries(domain models.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())

		var env entriesEnvelope
		if err := decodeBody(w, r, &env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")

			return
		}

		results, err := s.store.UpsertEntries(r.Context(), claims.UserID, domain, env.Entries)
		if err != nil {
			s.writeStoreError(w, err)

			return
		}

		s.metrics.SyncUploadsTotal.WithLabelValues(string(domain)).Inc()
		s.hub.Broadcast(claims.UserID, r.Header.Get(sessionHeader), domain)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"upserts": len(results),
		})
	}
}

func (s *Server) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	favorites, err := s.store.Favorites(r.Context(), claims.UserID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, favoritesEnvelope{Favorites: favorites})
}

func (s *Server) handlePostFavorites(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	var env favoritesEnvelope
	if err := decodeBody(w, r, &env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	results, err := s.store.UpsertFavorites(r.Context(), claims.UserID, env.Favorites)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	s.metrics.SyncUploadsTotal.WithLabelValues(string(models.DomainFavorites)).Inc()
	s.hub.Broadcast(claims.UserID, r.Header.Get(sessionHeader), models.DomainFavorites)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"upserts": len(results),
	})
}

func (s *Server) handleGetAllowances(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	allowances, err := s.store.Allowances(r.Context(), claims.UserID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.Allowances{"allowances": allowances})
}

func (s *Server) handleGetWorkoutSchedule(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	schedule, err := s.store.WorkoutSchedule(r.Context(), claims.UserID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.WorkoutSchedule{"schedule": schedule})
}

func (s *Server) handleGetMenuTemplate(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	template, err := s.store.MenuTemplateForUser(r.Context(), claims.UserID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.MenuTemplate{"template": template})
}

// handleEvents upgrades to a WebSocket and parks the connection in the
// hub until the client goes away. The read loop exists only to notice
// the close; clients never send anything meaningful.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", slog.Any("error", err))

		return
	}

	sessionID := s.hub.Register(claims.UserID, r.Header.Get(sessionHeader), conn)
	defer s.hub.Unregister(claims.UserID, sessionID)

	ctx := r.Context()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")

			return
		}
	}
}
