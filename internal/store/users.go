package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/alexjbarnes/fittrack/internal/errors"
	"github.com/alexjbarnes/fittrack/internal/models"
)

// UserRecord is a stored account including the credential hash and
// template assignment, which never leave the server.
type UserRecord struct {
	models.User
	PasswordHash   string
	MenuTemplateID *int64
}

// CreateUser inserts a new account. The first account ever created
// becomes the admin, matching the bootstrap flow where the instance
// owner signs up first.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (models.User, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return models.User{}, fmt.Errorf("counting users: %w", err)
	}

	role := models.RoleUser
	if count == 0 {
		role = models.RoleAdmin
	}

	user := models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, passwordHash, user.Role, user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return models.User{}, apperrors.ErrEmailTaken
		}

		return models.User{}, fmt.Errorf("inserting user: %w", err)
	}

	return user, nil
}

func scanUser(row *sql.Row) (*UserRecord, error) {
	var (
		rec        UserRecord
		templateID sql.NullInt64
	)

	err := row.Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.Role, &templateID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrUserNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if templateID.Valid {
		rec.MenuTemplateID = &templateID.Int64
	}

	return &rec, nil
}

const userColumns = "id, email, password_hash, role, menu_template_id, created_at"

// UserByEmail returns the account for an email address.
func (s *Store) UserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// UserByID returns the account for an ID.
func (s *Store) UserByID(ctx context.Context, id string) (*UserRecord, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// Users lists all accounts, oldest first.
func (s *Store) Users(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []UserRecord

	for rows.Next() {
		var (
			rec        UserRecord
			templateID sql.NullInt64
		)

		if err := rows.Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.Role, &templateID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}

		if templateID.Valid {
			rec.MenuTemplateID = &templateID.Int64
		}

		users = append(users, rec)
	}

	return users, rows.Err()
}

// DeleteUser removes an account. Entries, favorites, and settings go
// with it through the cascade constraints.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	if affected == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

// AssignMenuTemplate sets or clears (templateID nil) a user's template.
func (s *Store) AssignMenuTemplate(ctx context.Context, userID string, templateID *int64) error {
	if templateID != nil {
		var exists int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM menu_templates WHERE id = ?", *templateID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrTemplateNotFound
		}

		if err != nil {
			return fmt.Errorf("checking template: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET menu_template_id = ? WHERE id = ?", templateID, userID)
	if err != nil {
		return fmt.Errorf("assigning template: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assigning template: %w", err)
	}

	if affected == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}
