package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/tastemap/listing-service/internal/domain"
)

// Response types for JSON serialization.

type restaurantResponse struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	BranchInfo   string   `json:"branch_info"`
	Sido         string   `json:"sido"`
	Sigugun      string   `json:"sigugun"`
	Dongmyun     string   `json:"dongmyun"`
	MainImageURL string   `json:"main_image_url"`
	ViewCount    int64    `json:"view_count"`
	ReviewCount  int64    `json:"review_count"`
	RatingAvg    float64  `json:"rating_avg"`
	LikeCount    int64    `json:"like_count"`
	DistanceKm   *float64 `json:"distance_km,omitempty"`
	RecScore     *float64 `json:"rec_score,omitempty"`
}

type listRestaurantsResponse struct {
	Rows       []restaurantResponse `json:"rows"`
	HasMore    bool                 `json:"has_more"`
	NextCursor *string              `json:"next_cursor"`
}

type ratingBreakdownResponse struct {
	Good int64 `json:"good"`
	OK   int64 `json:"ok"`
	Bad  int64 `json:"bad"`
}

type statsResponse struct {
	RestaurantID    int64                   `json:"restaurant_id"`
	ViewCount       int64                   `json:"view_count"`
	LikeCount       int64                   `json:"like_count"`
	ReviewCount     int64                   `json:"review_count"`
	RatingSum       int64                   `json:"rating_sum"`
	RatingAvg       float64                 `json:"rating_avg"`
	RatingBreakdown ratingBreakdownResponse `json:"rating_breakdown"`
	IsLiked         *bool                   `json:"is_liked,omitempty"`
}

type statsManyResponse struct {
	Stats []statsResponse `json:"stats"`
}

type likeResponse struct {
	LikeCount int64 `json:"like_count"`
	IsLiked   bool  `json:"is_liked"`
}

type reviewResponse struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	UserName      string    `json:"user_name"`
	Rating        int       `json:"rating"`
	DisplayRating float64   `json:"display_rating"`
	Category      string    `json:"category"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

type reviewFeedResponse struct {
	Reviews    []reviewResponse `json:"reviews"`
	HasMore    bool             `json:"has_more"`
	NextCursor *string          `json:"next_cursor"`
}

type cohortResponse struct {
	AgeBand *int   `json:"age_band"`
	Gender  string `json:"gender"`
}

// Converter functions

func summaryToResponse(s domain.RestaurantSummary) restaurantResponse {
	return restaurantResponse{
		ID:           s.ID,
		Name:         s.Name,
		Category:     s.Category,
		BranchInfo:   s.BranchInfo,
		Sido:         s.Sido,
		Sigugun:      s.Sigugun,
		Dongmyun:     s.Dongmyun,
		MainImageURL: s.MainImageURL,
		ViewCount:    s.ViewCount,
		ReviewCount:  s.ReviewCount,
		RatingAvg:    s.RatingAvg,
		LikeCount:    s.LikeCount,
		DistanceKm:   s.DistanceKm,
		RecScore:     s.RecScore,
	}
}

func statsToResponse(s domain.RestaurantStats) statsResponse {
	return statsResponse{
		RestaurantID: s.RestaurantID,
		ViewCount:    s.ViewCount,
		LikeCount:    s.LikeCount,
		ReviewCount:  s.ReviewCount,
		RatingSum:    s.RatingSum,
		RatingAvg:    s.RatingAvg,
		RatingBreakdown: ratingBreakdownResponse{
			Good: s.GoodCount,
			OK:   s.OKCount,
			Bad:  s.BadCount,
		},
	}
}

func reviewToResponse(r domain.Review) reviewResponse {
	return reviewResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		UserName:      r.UserName,
		Rating:        r.Rating,
		DisplayRating: float64(r.Rating) / 2,
		Category:      string(r.Category),
		Content:       r.Content,
		CreatedAt:     r.CreatedAt,
	}
}

// writeDomainError maps a domain error to an HTTP status. Internal details
// are never echoed to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, nf.Entity+" not found")
		} else {
			writeError(w, http.StatusNotFound, "resource not found")
		}
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set(headerRetryAfter, "1")
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrTransient):
		w.Header().Set(headerRetryAfter, "1")
		writeError(w, http.StatusServiceUnavailable, "temporary failure, retry the request")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
