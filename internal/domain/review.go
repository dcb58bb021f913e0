package domain

import "time"

// Review is a row of a restaurant's review feed. Review authoring lives
// outside this service; the feed is read-only here.
type Review struct {
	ID           int64
	RestaurantID int64
	UserID       int64
	UserName     string
	Rating       int
	Category     RatingCategory
	Content      string
	CreatedAt    time.Time
}

// ReviewPage is one page of a review feed.
type ReviewPage struct {
	Reviews    []Review
	HasMore    bool
	NextCursor *string
}
