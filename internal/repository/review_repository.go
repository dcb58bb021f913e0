package repository

import (
	"context"

	"github.com/tastemap/listing-service/internal/domain"
)

// DefaultReviewPageSize is used when a feed query does not set a limit.
const DefaultReviewPageSize = 5

// ReviewFeedQuery selects one page of a restaurant's reviews.
type ReviewFeedQuery struct {
	RestaurantID int64
	// ViewerID, when set, hides reviews written by users the viewer blocked.
	ViewerID *int64
	// Category filters by rating bucket. Values other than good, ok and bad
	// are ignored.
	Category string
	Cursor   string
	Limit    int
}

// ReviewFeedRepository reads review feeds newest first.
type ReviewFeedRepository interface {
	// ListByRestaurant returns reviews ordered by created_at DESC, id DESC.
	// A malformed cursor restarts from the newest review.
	ListByRestaurant(ctx context.Context, q ReviewFeedQuery) (*domain.ReviewPage, error)
}
