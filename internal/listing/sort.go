package listing

import (
	"strings"

	"github.com/tastemap/listing-service/internal/domain"
)

// SortMode is a requested listing order.
type SortMode string

const (
	SortDefault  SortMode = "default"
	SortRating   SortMode = "rating"
	SortViews    SortMode = "views"
	SortLikes    SortMode = "likes"
	SortReviews  SortMode = "reviews"
	SortDistance SortMode = "distance"
)

// ParseSortMode parses a client supplied mode. An empty value selects the
// default order.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SortDefault, nil
	case SortDefault, SortRating, SortViews, SortLikes, SortReviews, SortDistance:
		return m, nil
	default:
		return "", domain.NewValidationError("sort", "must be one of default, rating, views, likes, reviews, distance")
	}
}

// Column names usable in a sort order.
const (
	ColumnID          = "id"
	ColumnRatingAvg   = "rating_avg"
	ColumnReviewCount = "review_count"
	ColumnLikeCount   = "like_count"
	ColumnViewCount   = "view_count"
	ColumnDistanceKm  = "distance_km"
	ColumnRecScore    = "rec_score"
)

// Term is one (column, direction) element of a resolved order.
type Term struct {
	Column string
	Desc   bool
}

func desc(c string) Term { return Term{Column: c, Desc: true} }
func asc(c string) Term  { return Term{Column: c} }

// sortTerms lists the fixed order of each mode. Every order ends in id ASC.
var sortTerms = map[SortMode][]Term{
	SortDefault:  {desc(ColumnRecScore), desc(ColumnReviewCount), desc(ColumnLikeCount), asc(ColumnID)},
	SortRating:   {desc(ColumnRatingAvg), desc(ColumnReviewCount), desc(ColumnLikeCount), asc(ColumnID)},
	SortViews:    {desc(ColumnViewCount), desc(ColumnLikeCount), desc(ColumnReviewCount), asc(ColumnID)},
	SortLikes:    {desc(ColumnLikeCount), desc(ColumnRatingAvg), desc(ColumnReviewCount), asc(ColumnID)},
	SortReviews:  {desc(ColumnReviewCount), desc(ColumnRatingAvg), desc(ColumnLikeCount), asc(ColumnID)},
	SortDistance: {asc(ColumnDistanceKm), asc(ColumnID)},
}

// SortContext describes the parts of a request that influence the order.
type SortContext struct {
	HasLocation bool
	HasSearch   bool
	HasRegion   bool
}

// Resolution is the outcome of sort resolution.
type Resolution struct {
	// Mode is the effective mode after context substitution.
	Mode  SortMode
	Terms []Term
	// RadiusKm bounds the candidate set around the request location; 0 means
	// no geographic filter.
	RadiusKm float64
	// Implicit is set when the radius narrows candidates without the order
	// being distance based.
	Implicit bool
}

// Needs reports whether the resolved order uses the given column.
func (r Resolution) Needs(column string) bool {
	for _, t := range r.Terms {
		if t.Column == column {
			return true
		}
	}
	return false
}

// SortResolver maps a mode and request context to an order and radius.
type SortResolver struct {
	ImplicitRadiusKm float64
	DistanceRadiusKm float64
}

// NewSortResolver returns a resolver with the given candidate radii.
func NewSortResolver(implicitRadiusKm, distanceRadiusKm float64) SortResolver {
	return SortResolver{
		ImplicitRadiusKm: implicitRadiusKm,
		DistanceRadiusKm: distanceRadiusKm,
	}
}

// Resolve applies the context rules:
//   - a region filter turns a distance sort into the default order;
//   - a distance sort without a location is rejected;
//   - a distance sort bounds candidates by DistanceRadiusKm;
//   - any other mode with a location and neither search text nor region is
//     bounded by ImplicitRadiusKm without changing the order.
func (s SortResolver) Resolve(mode SortMode, ctx SortContext) (Resolution, error) {
	if mode == "" {
		mode = SortDefault
	}
	if mode == SortDistance && ctx.HasRegion {
		mode = SortDefault
	}

	terms, ok := sortTerms[mode]
	if !ok {
		return Resolution{}, domain.NewValidationError("sort", "unknown sort mode "+string(mode))
	}

	res := Resolution{Mode: mode, Terms: terms}
	switch {
	case mode == SortDistance:
		if !ctx.HasLocation {
			return Resolution{}, domain.NewValidationError("sort", "distance sort requires lat and lng")
		}
		res.RadiusKm = s.DistanceRadiusKm
	case ctx.HasLocation && !ctx.HasSearch && !ctx.HasRegion && s.ImplicitRadiusKm > 0:
		res.RadiusKm = s.ImplicitRadiusKm
		res.Implicit = true
	}
	return res, nil
}
