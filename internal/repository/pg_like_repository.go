package repository

import (
	"context"
	"fmt"

	"github.com/tastemap/listing-service/internal/domain"
)

var _ LikeRepository = (*PgLikeRepository)(nil)

// PgLikeRepository is a PostgreSQL implementation of LikeRepository.
type PgLikeRepository struct {
	db DBTX
}

// NewPgLikeRepository creates a new PostgreSQL like repository.
func NewPgLikeRepository(db DBTX) *PgLikeRepository {
	return &PgLikeRepository{db: db}
}

// Exists reports whether the user likes the restaurant.
func (r *PgLikeRepository) Exists(ctx context.Context, userID, restaurantID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM restaurant_likes WHERE user_id = $1 AND restaurant_id = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, restaurantID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}
	return exists, nil
}

// Insert records a like, tolerating a concurrent duplicate.
func (r *PgLikeRepository) Insert(ctx context.Context, userID, restaurantID int64) (bool, error) {
	query := `
		INSERT INTO restaurant_likes (user_id, restaurant_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, restaurant_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, userID, restaurantID)
	if err != nil {
		switch {
		case isPgForeignKeyViolation(err):
			return false, domain.NewNotFoundError("user or restaurant", fmt.Sprintf("%d/%d", userID, restaurantID))
		case isPgUniqueViolation(err):
			return false, nil
		}
		return false, fmt.Errorf("failed to insert like: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a like.
func (r *PgLikeRepository) Delete(ctx context.Context, userID, restaurantID int64) (bool, error) {
	query := `DELETE FROM restaurant_likes WHERE user_id = $1 AND restaurant_id = $2`

	tag, err := r.db.Exec(ctx, query, userID, restaurantID)
	if err != nil {
		return false, fmt.Errorf("failed to delete like: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
