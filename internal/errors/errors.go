package errors

import "errors"

// Client errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotLoggedIn        = errors.New("not logged in")
)

// Server/storage errors.
var (
	ErrEmailTaken       = errors.New("email already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrTemplateNotFound = errors.New("menu template not found")
	ErrForbidden        = errors.New("admin access required")
)
