package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alexjbarnes/fittrack/internal/auth"
	apperrors "github.com/alexjbarnes/fittrack/internal/errors"
	"github.com/alexjbarnes/fittrack/internal/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")

	return at > 0 && at < len(email)-1
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
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

	s.issueToken(w, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	rec, err := s.store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, apperrors.ErrInvalidCredentials.Error())

			return
		}

		s.writeStoreError(w, err)

		return
	}

	if !auth.CheckPassword(rec.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, apperrors.ErrInvalidCredentials.Error())

		return
	}

	s.issueToken(w, rec.User)
}

func (s *Server) issueToken(w http.ResponseWriter, user models.User) {
	token, err := s.auth.Generate(user)
	if err != nil {
		s.writeStoreError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}
