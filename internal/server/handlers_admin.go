package server

import (
	"net/http"
	"strconv"

	"github.com/alexjbarnes/fittrack/internal/auth"
	"github.com/alexjbarnes/fittrack/internal/models"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Users(r.Context())
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	type adminUser struct {
		models.User
		MenuTemplateID *int64 `json:"menuTemplateId"`
	}

	users := make([]adminUser, 0, len(records))
	for _, rec := range records {
		users = append(users, adminUser{User: rec.User, MenuTemplateID: rec.MenuTemplateID})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")

		return
	}

	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, hash)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.User{"user": user})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	id := r.PathValue("id")

	// Admins lock themselves out by deleting their own account, so
	// refuse it.
	if id == claims.UserID {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")

		return
	}

	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminGetEntries(domain models.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.store.Entries(r.Context(), r.PathValue("id"), domain)
		if err != nil {
			s.writeStoreError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, entriesEnvelope{Entries: entries})
	}
}

// handleAdminPostEntries edits a user's entries with the same upsert
// contract as the sync endpoints, and notifies the user's sessions the
// same way.
func (s *Server) handleAdminPostEntries(domain models.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("id")

		var env entriesEnvelope
		if err := decodeBody(w, r, &env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")

			return
		}

		if _, err := s.store.UserByID(r.Context(), userID); err != nil {
			s.writeStoreError(w, err)

			return
		}

		results, err := s.store.UpsertEntries(r.Context(), userID, domain, env.Entries)
		if err != nil {
			s.writeStoreError(w, err)

			return
		}

		s.hub.Broadcast(userID, "", domain)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"upserts": len(results),
		})
	}
}

func (s *Server) handleAdminGetAllowances(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	if _, err := s.store.UserByID(r.Context(), userID); err != nil {
		s.writeStoreError(w, err)

		return
	}

	allowances, err := s.store.Allowances(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.Allowances{"allowances": allowances})
}

func (s *Server) handleAdminPutAllowances(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var allowances models.Allowances
	if err := decodeBody(w, r, &allowances); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if _, err := s.store.UserByID(r.Context(), userID); err != nil {
		s.writeStoreError(w, err)

		return
	}

	if err := s.store.SetAllowances(r.Context(), userID, allowances); err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.Allowances{"allowances": allowances})
}

func (s *Server) handleAdminGetSchedule(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	if _, err := s.store.UserByID(r.Context(), userID); err != nil {
		s.writeStoreError(w, err)

		return
	}

	schedule, err := s.store.WorkoutSchedule(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.WorkoutSchedule{"schedule": schedule})
}

func (s *Server) handleAdminPutSchedule(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var schedule models.WorkoutSchedule
	if err := decodeBody(w, r, &schedule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if _, err := s.store.UserByID(r.Context(), userID); err != nil {
		s.writeStoreError(w, err)

		return
	}

	if err := s.store.SetWorkoutSchedule(r.Context(), userID, schedule); err != nil {
		s.writeStoreError(w, err)

		return
	}

	stored, err := s.store.WorkoutSchedule(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.WorkoutSchedule{"schedule": stored})
}

func (s *Server) handleAdminAssignTemplate(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req struct {
		TemplateID *int64 `json:"templateId"`
	}

	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := s.store.AssignMenuTemplate(r.Context(), userID, req.TemplateID); err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.MenuTemplates(r.Context())
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string][]models.MenuTemplate{"templates": templates})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl models.MenuTemplate
	if err := decodeBody(w, r, &tpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if tpl.Name == "" {
		writeError(w, http.StatusBadRequest, "template name is required")

		return
	}

	created, err := s.store.CreateMenuTemplate(r.Context(), tpl)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.MenuTemplate{"template": created})
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")

		return
	}

	var tpl models.MenuTemplate
	if err := decodeBody(w, r, &tpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	tpl.ID = id

	updated, err := s.store.UpdateMenuTemplate(r.Context(), tpl)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]models.MenuTemplate{"template": updated})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")

		return
	}

	if err := s.store.DeleteMenuTemplate(r.Context(), id); err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
