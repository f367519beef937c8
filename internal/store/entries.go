package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexjbarnes/fittrack/internal/models"
)

// Entries returns every stored entry for a user's day-keyed domain.
func (s *Store) Entries(ctx context.Context, userID string, domain models.Domain) ([]models.WireEntry, error) {
	table, err := entriesTable(domain)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT day_key, data, updated_at FROM "+table+" WHERE user_id = ? ORDER BY day_key", userID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	entries := []models.WireEntry{}

	for rows.Next() {
		var (
			entry models.WireEntry
			data  string
		)

		if err := rows.Scan(&entry.Key, &data, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}

		entry.Payload = []byte(data)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// UpsertEntries stores the uploaded collection verbatim, one upsert per
// key. The client already merged, so an older timestamp here still
// overwrites: the server holds no opinion of its own.
func (s *Store) UpsertEntries(ctx context.Context, userID string, domain models.Domain, entries []models.WireEntry) ([]models.UpsertResult, error) {
	table, err := entriesTable(domain)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	results := make([]models.UpsertResult, 0, len(entries))

	for _, entry := range entries {
		if entry.Key == "" {
			continue
		}

		var exists int

		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM "+table+" WHERE user_id = ? AND day_key = ?",
			userID, entry.Key).Scan(&exists)

		wasInsert := errors.Is(err, sql.ErrNoRows)
		if err != nil && !wasInsert {
			return nil, fmt.Errorf("checking existing %s/%s: %w", table, entry.Key, err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO "+table+" (user_id, day_key, data, updated_at) VALUES (?, ?, ?, ?)"+
				" ON CONFLICT (user_id, day_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at",
			userID, entry.Key, string(entry.Payload), entry.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("upserting %s/%s: %w", table, entry.Key, err)
		}

		results = append(results, models.UpsertResult{AffectedKey: entry.Key, WasInsert: wasInsert})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing upsert: %w", err)
	}

	return results, nil
}
