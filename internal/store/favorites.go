package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexjbarnes/fittrack/internal/models"
)

// Favorites returns a user's favorite items across all categories.
func (s *Store) Favorites(ctx context.Context, userID string) ([]models.WireFavorite, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT category, item_id, item, updated_at FROM favorites WHERE user_id = ? ORDER BY category, item_id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying favorites: %w", err)
	}
	defer rows.Close()

	favorites := []models.WireFavorite{}

	for rows.Next() {
		var (
			fav  models.WireFavorite
			item string
		)

		if err := rows.Scan(&fav.Category, &fav.ItemID, &item, &fav.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning favorite: %w", err)
		}

		fav.Item = []byte(item)
		favorites = append(favorites, fav)
	}

	return favorites, rows.Err()
}

// UpsertFavorites stores the uploaded favorites per (category, itemId)
// key. Rows missing from the upload are removed, mirroring the
// client's reconciled view exactly.
func (s *Store) UpsertFavorites(ctx context.Context, userID string, favorites []models.WireFavorite) ([]models.UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	results := make([]models.UpsertResult, 0, len(favorites))
	keep := make(map[string]bool, len(favorites))

	for _, fav := range favorites {
		if fav.Category == "" {
			continue
		}

		key := models.FavoriteKey(fav.Category, fav.ItemID)
		keep[key] = true

		var exists int

		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM favorites WHERE user_id = ? AND category = ? AND item_id = ?",
			userID, fav.Category, fav.ItemID).Scan(&exists)

		wasInsert := errors.Is(err, sql.ErrNoRows)
		if err != nil && !wasInsert {
			return nil, fmt.Errorf("checking existing favorite %s: %w", key, err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO favorites (user_id, category, item_id, item, updated_at) VALUES (?, ?, ?, ?, ?)"+
				" ON CONFLICT (user_id, category, item_id) DO UPDATE SET item = excluded.item, updated_at = excluded.updated_at",
			userID, fav.Category, fav.ItemID, string(fav.Item), fav.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("upserting favorite %s: %w", key, err)
		}

		results = append(results, models.UpsertResult{AffectedKey: key, WasInsert: wasInsert})
	}

	// Unfavoriting removes the row on the client before upload, so a
	// row absent from the upload is a deletion.
	rows, err := tx.QueryContext(ctx,
		"SELECT category, item_id FROM favorites WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("querying stale favorites: %w", err)
	}

	type favKey struct {
		category string
		itemID   int64
	}

	var stale []favKey

	for rows.Next() {
		var k favKey
		if err := rows.Scan(&k.category, &k.itemID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning favorite key: %w", err)
		}

		if !keep[models.FavoriteKey(k.category, k.itemID)] {
			stale = append(stale, k)
		}
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating favorites: %w", err)
	}

	for _, k := range stale {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM favorites WHERE user_id = ? AND category = ? AND item_id = ?",
			userID, k.category, k.itemID)
		if err != nil {
			return nil, fmt.Errorf("deleting favorite: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing favorites: %w", err)
	}

	return results, nil
}
