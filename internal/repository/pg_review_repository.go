package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/keyset"
)

// MaxReviewPageSize caps ReviewFeedQuery.Limit.
const MaxReviewPageSize = 50

// reviewFeedSpec orders a feed newest first; id breaks created_at ties.
var reviewFeedSpec = keyset.Spec{
	keyset.Desc(keyset.Column{Name: "created_at", Expr: "rv.created_at", Kind: keyset.KindTime}),
	keyset.Desc(keyset.Column{Name: "id", Expr: "rv.id", Kind: keyset.KindInt}),
}

var _ ReviewFeedRepository = (*PgReviewRepository)(nil)

// PgReviewRepository is a PostgreSQL implementation of ReviewFeedRepository.
type PgReviewRepository struct {
	db DBTX
}

// NewPgReviewRepository creates a new PostgreSQL review feed repository.
func NewPgReviewRepository(db DBTX) *PgReviewRepository {
	return &PgReviewRepository{db: db}
}

// ListByRestaurant returns one page of reviews, fetching one extra row to
// detect whether another page exists.
func (r *PgReviewRepository) ListByRestaurant(ctx context.Context, q ReviewFeedQuery) (*domain.ReviewPage, error) {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultReviewPageSize
	case limit > MaxReviewPageSize:
		limit = MaxReviewPageSize
	}

	args := []any{q.RestaurantID}
	conditions := []string{"rv.restaurant_id = $1"}
	argIndex := 2

	if category, ok := domain.ParseRatingCategory(q.Category); ok {
		conditions = append(conditions, "rv.rating_category = $"+strconv.Itoa(argIndex))
		args = append(args, string(category))
		argIndex++
	}
	if q.ViewerID != nil {
		conditions = append(conditions, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM user_blocks b WHERE b.blocker_user_id = $%d AND b.blocked_user_id = rv.user_id)",
			argIndex))
		args = append(args, *q.ViewerID)
		argIndex++
	}
	if values, ok := keyset.Decode(q.Cursor, reviewFeedSpec); ok {
		pred, predArgs, next := keyset.Build(reviewFeedSpec, values).SQL(argIndex)
		conditions = append(conditions, pred)
		args = append(args, predArgs...)
		argIndex = next
	}

	query := `
		SELECT rv.id, rv.restaurant_id, rv.user_id, u.name, rv.rating, rv.rating_category, rv.content, rv.created_at
		FROM reviews rv
		JOIN users u ON u.id = rv.user_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY ` + reviewFeedSpec.OrderBy() + `
		LIMIT $` + strconv.Itoa(argIndex)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0, limit+1)
	for rows.Next() {
		var (
			rv       domain.Review
			rating   int16
			category string
		)
		if err := rows.Scan(&rv.ID, &rv.RestaurantID, &rv.UserID, &rv.UserName, &rating, &category, &rv.Content, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		rv.Rating = int(rating)
		rv.Category = domain.RatingCategory(category)
		rv.CreatedAt = rv.CreatedAt.UTC()
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	page := &domain.ReviewPage{Reviews: reviews}
	if len(reviews) > limit {
		page.Reviews = reviews[:limit]
		page.HasMore = true

		last := page.Reviews[limit-1]
		token, err := encodeReviewCursor(last.CreatedAt, last.ID)
		if err != nil {
			return nil, err
		}
		page.NextCursor = &token
	}
	return page, nil
}

func encodeReviewCursor(createdAt time.Time, id int64) (string, error) {
	token, err := keyset.Encode(reviewFeedSpec, keyset.Values{"created_at": createdAt, "id": id})
	if err != nil {
		return "", fmt.Errorf("failed to encode review cursor: %w", err)
	}
	return token, nil
}
