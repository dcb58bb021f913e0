package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/listing"
	"github.com/tastemap/listing-service/internal/observability"
	"github.com/tastemap/listing-service/internal/repository"
)

// maxLimitParam caps a limit query parameter before validation; the engine
// clamps further to its configured maximum.
const maxLimitParam = 1000

type listRestaurantsParams struct {
	Sort   string   `query:"sort" validate:"max=16"`
	Sido   string   `query:"sido" validate:"max=32"`
	Query  string   `query:"q" validate:"max=200"`
	Cursor string   `query:"cursor"`
	Lat    *float64 `query:"lat" validate:"omitempty,min=-90,max=90"`
	Lng    *float64 `query:"lng" validate:"omitempty,min=-180,max=180"`
	Limit  int      `query:"limit" validate:"min=0,max=1000"`
}

type statsManyParams struct {
	IDs []int64 `query:"ids" validate:"required,min=1,max=100,dive,gt=0"`
}

type listReviewsParams struct {
	Category string `query:"category" validate:"max=8"`
	Cursor   string `query:"cursor"`
	Limit    int    `query:"limit" validate:"min=0,max=1000"`
}

// listRestaurants handles GET /restaurants.
func (s *Server) listRestaurants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	params := listRestaurantsParams{
		Sort:   q.Get("sort"),
		Sido:   strings.TrimSpace(q.Get("sido")),
		Query:  q.Get("q"),
		Cursor: q.Get("cursor"),
	}
	var err error
	if params.Lat, err = parseOptionalFloat(q.Get("lat"), "lat"); err != nil {
		writeDomainError(w, err)
		return
	}
	if params.Lng, err = parseOptionalFloat(q.Get("lng"), "lng"); err != nil {
		writeDomainError(w, err)
		return
	}
	if params.Limit, err = parseLimit(q.Get("limit")); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.validateParams(params); err != nil {
		writeDomainError(w, err)
		return
	}
	if (params.Lat == nil) != (params.Lng == nil) {
		writeDomainError(w, domain.NewValidationError("location", "lat and lng must be supplied together"))
		return
	}

	mode, err := listing.ParseSortMode(params.Sort)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	req := listing.Request{
		SortMode:   mode,
		Region:     params.Sido,
		SearchText: params.Query,
		Cursor:     params.Cursor,
		Limit:      params.Limit,
	}
	if params.Lat != nil {
		req.Location = &listing.Point{Lat: *params.Lat, Lng: *params.Lng}
	}
	if id, ok := observability.RequesterIDFromContext(ctx); ok {
		req.RequesterID = &id
	}

	page, err := s.deps.Listing.List(ctx, req)
	if err != nil {
		s.logFailure(r, err, "listing failed")
		writeDomainError(w, err)
		return
	}

	rows := make([]restaurantResponse, len(page.Rows))
	for i, row := range page.Rows {
		rows[i] = summaryToResponse(row)
	}
	writeJSON(w, http.StatusOK, listRestaurantsResponse{
		Rows:       rows,
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	})
}

// getStatsMany handles GET /restaurants/stats?ids=1,2,3.
func (s *Server) getStatsMany(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.validateParams(statsManyParams{IDs: ids}); err != nil {
		writeDomainError(w, err)
		return
	}

	stats, err := s.deps.Counters.GetStatsMany(r.Context(), ids)
	if err != nil {
		s.logFailure(r, err, "stats batch read failed")
		writeDomainError(w, err)
		return
	}

	resp := statsManyResponse{Stats: make([]statsResponse, len(stats))}
	for i, st := range stats {
		resp.Stats[i] = statsToResponse(st)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getStats handles GET /restaurants/{restaurantID}/stats. A known requester
// also gets is_liked.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := parseID(w, r, "restaurantID")
	if !ok {
		return
	}

	stats, err := s.deps.Counters.GetStats(r.Context(), restaurantID)
	if err != nil {
		s.logFailure(r, err, "stats read failed")
		writeDomainError(w, err)
		return
	}
	resp := statsToResponse(*stats)
	if userID, ok := observability.RequesterIDFromContext(r.Context()); ok {
		liked, err := s.deps.Counters.IsLiked(r.Context(), userID, restaurantID)
		if err != nil {
			s.logFailure(r, err, "like lookup failed")
			writeDomainError(w, err)
			return
		}
		resp.IsLiked = &liked
	}
	writeJSON(w, http.StatusOK, resp)
}

// increaseView handles POST /restaurants/{restaurantID}/views.
func (s *Server) increaseView(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := parseID(w, r, "restaurantID")
	if !ok {
		return
	}

	if _, err := s.deps.Counters.IncreaseView(r.Context(), restaurantID); err != nil {
		s.logFailure(r, err, "view increment failed")
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// toggleLike handles POST /restaurants/{restaurantID}/likes.
func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := parseID(w, r, "restaurantID")
	if !ok {
		return
	}
	userID, ok := observability.RequesterIDFromContext(r.Context())
	if !ok {
		writeDomainError(w, domain.ErrUnauthorized)
		return
	}

	result, err := s.deps.Counters.ToggleLike(r.Context(), userID, restaurantID)
	if err != nil {
		s.logFailure(r, err, "like toggle failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{LikeCount: result.LikeCount, IsLiked: result.IsLiked})
}

// listReviews handles GET /restaurants/{restaurantID}/reviews.
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := parseID(w, r, "restaurantID")
	if !ok {
		return
	}

	q := r.URL.Query()
	params := listReviewsParams{
		Category: strings.ToLower(strings.TrimSpace(q.Get("category"))),
		Cursor:   q.Get("cursor"),
	}
	var err error
	if params.Limit, err = parseLimit(q.Get("limit")); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.validateParams(params); err != nil {
		writeDomainError(w, err)
		return
	}

	feedQuery := repository.ReviewFeedQuery{
		RestaurantID: restaurantID,
		Category:     params.Category,
		Cursor:       params.Cursor,
		Limit:        params.Limit,
	}
	if feedQuery.Limit == 0 {
		feedQuery.Limit = s.cfg.ReviewPageSize
	}
	if id, ok := observability.RequesterIDFromContext(r.Context()); ok {
		feedQuery.ViewerID = &id
	}

	page, err := s.deps.Reviews.ListByRestaurant(r.Context(), feedQuery)
	if err != nil {
		s.logFailure(r, err, "review feed failed")
		writeDomainError(w, err)
		return
	}

	resp := reviewFeedResponse{
		Reviews:    make([]reviewResponse, len(page.Reviews)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for i, rv := range page.Reviews {
		resp.Reviews[i] = reviewToResponse(rv)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getUserCohort handles GET /users/{userID}/cohort.
func (s *Server) getUserCohort(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "userID")
	if !ok {
		return
	}

	cohort, err := s.deps.Users.ResolveCohort(r.Context(), userID)
	if err != nil {
		s.logFailure(r, err, "cohort resolution failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cohortResponse{AgeBand: cohort.AgeBand, Gender: string(cohort.Gender)})
}

// logFailure logs errors that map to a 5xx status.
func (s *Server) logFailure(r *http.Request, err error, msg string) {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrUnauthorized) {
		return
	}
	logger := observability.WithRequestContext(r.Context(), s.logger)
	logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg(msg)
}

// validateParams runs struct validation and converts the first failure into
// a domain.ValidationError named after the query parameter.
func (s *Server) validateParams(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		// Elements of a dived slice report as Name[i].
		structField := fe.StructField()
		if i := strings.IndexByte(structField, '['); i >= 0 {
			structField = structField[:i]
		}
		if sf, ok := reflect.TypeOf(v).FieldByName(structField); ok {
			if name := sf.Tag.Get("query"); name != "" {
				field = name
			}
		}
		msg := "failed " + fe.Tag() + " validation"
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		return domain.NewValidationError(field, msg)
	}
	return domain.NewValidationError("request", err.Error())
}

// parseID parses a positive int64 path parameter, writing a 400 error
// response if invalid. The raw value is not echoed back.
func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", param))
		return 0, false
	}
	return id, true
}

func parseOptionalFloat(raw, field string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be a number")
	}
	return &v, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("limit", "must be an integer")
	}
	if v > maxLimitParam {
		v = maxLimitParam
	}
	return v, nil
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, domain.NewValidationError("ids", "must be a comma separated list of integers")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
