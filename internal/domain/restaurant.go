// Package domain provides the entities shared by the listing engine, the
// counter stores and the HTTP API of the restaurant listing service.
package domain

// Rating scale bounds. Ratings are stored raw on a 0-10 integer scale and
// displayed on a 0-5 scale.
const (
	MinRating = 0
	MaxRating = 10
)

// RatingCategory buckets a raw rating.
type RatingCategory string

const (
	RatingGood RatingCategory = "good"
	RatingOK   RatingCategory = "ok"
	RatingBad  RatingCategory = "bad"
)

// CategoryFromRating maps a raw 0-10 rating to its bucket:
// good >= 7, ok in [3, 7), bad < 3.
func CategoryFromRating(rating int) RatingCategory {
	switch {
	case rating >= 7:
		return RatingGood
	case rating >= 3:
		return RatingOK
	default:
		return RatingBad
	}
}

// ParseRatingCategory returns the category and whether s named one.
func ParseRatingCategory(s string) (RatingCategory, bool) {
	switch RatingCategory(s) {
	case RatingGood, RatingOK, RatingBad:
		return RatingCategory(s), true
	default:
		return "", false
	}
}

// ValidateRating rejects ratings outside the raw scale.
func ValidateRating(field string, rating int) error {
	if rating < MinRating || rating > MaxRating {
		return NewValidationError(field, "must be between 0 and 10")
	}
	return nil
}

// RestaurantStats holds the engagement counters of one restaurant.
//
// GoodCount+OKCount+BadCount always equals ReviewCount, and RatingAvg is
// always DeriveRatingAvg(RatingSum, ReviewCount).
type RestaurantStats struct {
	RestaurantID int64
	ViewCount    int64
	LikeCount    int64
	ReviewCount  int64
	RatingSum    int64
	RatingAvg    float64
	GoodCount    int64
	OKCount      int64
	BadCount     int64
}

// DeriveRatingAvg returns round(ratingSum/reviewCount/2, 1), or 0 when there
// are no reviews. Rounding is half away from zero and computed on integers so
// the stored value never depends on float formatting.
func DeriveRatingAvg(ratingSum, reviewCount int64) float64 {
	if reviewCount <= 0 || ratingSum <= 0 {
		return 0
	}
	// round(5*sum/count) / 10
	tenths := (10*ratingSum + reviewCount) / (2 * reviewCount)
	return float64(tenths) / 10
}

// Consistent reports whether the bucket partition and non-negativity hold.
func (s *RestaurantStats) Consistent() bool {
	if s.ViewCount < 0 || s.LikeCount < 0 || s.ReviewCount < 0 || s.RatingSum < 0 {
		return false
	}
	if s.GoodCount < 0 || s.OKCount < 0 || s.BadCount < 0 {
		return false
	}
	return s.GoodCount+s.OKCount+s.BadCount == s.ReviewCount &&
		s.RatingAvg == DeriveRatingAvg(s.RatingSum, s.ReviewCount)
}

// ApplyReviewCreated folds a new review into the counters.
func (s *RestaurantStats) ApplyReviewCreated(rating int) {
	s.ReviewCount++
	s.RatingSum += int64(rating)
	*s.bucket(CategoryFromRating(rating))++
	s.RatingAvg = DeriveRatingAvg(s.RatingSum, s.ReviewCount)
}

// ApplyReviewDeleted removes a review from the counters. Every counter is
// floored at zero so out-of-order deletes cannot drive them negative.
func (s *RestaurantStats) ApplyReviewDeleted(rating int) {
	s.ReviewCount = floorZero(s.ReviewCount - 1)
	if s.RatingSum < int64(rating) {
		s.RatingSum = 0
	} else {
		s.RatingSum -= int64(rating)
	}
	b := s.bucket(CategoryFromRating(rating))
	*b = floorZero(*b - 1)
	s.RatingAvg = DeriveRatingAvg(s.RatingSum, s.ReviewCount)
}

// ApplyRatingChanged moves a review from oldRating to newRating. Buckets only
// move when the category changes.
func (s *RestaurantStats) ApplyRatingChanged(oldRating, newRating int) {
	s.RatingSum = floorZero(s.RatingSum - int64(oldRating) + int64(newRating))
	oldCat, newCat := CategoryFromRating(oldRating), CategoryFromRating(newRating)
	if oldCat != newCat {
		from := s.bucket(oldCat)
		if *from > 0 {
			*from--
			*s.bucket(newCat)++
		}
	}
	s.RatingAvg = DeriveRatingAvg(s.RatingSum, s.ReviewCount)
}

func (s *RestaurantStats) bucket(c RatingCategory) *int64 {
	switch c {
	case RatingGood:
		return &s.GoodCount
	case RatingOK:
		return &s.OKCount
	default:
		return &s.BadCount
	}
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// RestaurantSummary is one row of a listing page.
//
// DistanceKm is set only for an explicit distance sort and RecScore only when
// the recommended order is active.
type RestaurantSummary struct {
	ID           int64
	Name         string
	Category     string
	BranchInfo   string
	Sido         string
	Sigugun      string
	Dongmyun     string
	MainImageURL string
	ViewCount    int64
	ReviewCount  int64
	RatingAvg    float64
	LikeCount    int64
	DistanceKm   *float64
	RecScore     *float64
}

// LikeResult is returned by a like toggle.
type LikeResult struct {
	LikeCount int64
	IsLiked   bool
}
