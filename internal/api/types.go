package api

import "github.com/alexjbarnes/fittrack/internal/models"

// APIError is the error body the server returns on failures.
type APIError struct {
	Error string `json:"error"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type entriesEnvelope struct {
	Entries []models.WireEntry `json:"entries"`
}

type favoritesEnvelope struct {
	Favorites []models.WireFavorite `json:"favorites"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type allowancesEnvelope struct {
	Allowances models.Allowances `json:"allowances"`
}

type scheduleEnvelope struct {
	Schedule models.WorkoutSchedule `json:"schedule"`
}

type templateEnvelope struct {
	Template models.MenuTemplate `json:"template"`
}
