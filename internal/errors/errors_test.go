package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"invalid credentials", ErrInvalidCredentials, "invalid email or password"},
		{"invalid token", ErrInvalidToken, "invalid or expired token"},
		{"not logged in", ErrNotLoggedIn, "not logged in"},
		{"email taken", ErrEmailTaken, "email already exists"},
		{"user not found", ErrUserNotFound, "user not found"},
		{"template not found", ErrTemplateNotFound, "menu template not found"},
		{"forbidden", ErrForbidden, "admin access required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.msg)
		})
	}
}

func TestWrappedSentinelMatchesWithErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("during login: %w", ErrInvalidCredentials)
	assert.True(t, errors.Is(wrapped, ErrInvalidCredentials))
	assert.False(t, errors.Is(wrapped, ErrInvalidToken))
}
