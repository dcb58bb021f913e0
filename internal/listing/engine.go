package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/keyset"
	"github.com/tastemap/listing-service/internal/observability"
)

// Executor runs a planned listing query against storage. Rows must carry
// DistanceKm when q.IncludeDistance is set and RecScore when q.IncludeScore
// is set.
type Executor interface {
	FetchListing(ctx context.Context, q *Query) ([]domain.RestaurantSummary, error)
}

// CohortResolver resolves a requester's demographic cohort.
type CohortResolver interface {
	ResolveCohort(ctx context.Context, userID int64) (domain.Cohort, error)
}

// Config holds listing engine settings.
type Config struct {
	DefaultPageSize  int
	MaxPageSize      int
	ImplicitRadiusKm float64
	DistanceRadiusKm float64
	MaxSearchTerms   int
	Weights          Weights
}

// DefaultConfig returns the production listing settings.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize:  20,
		MaxPageSize:      50,
		ImplicitRadiusKm: 10,
		DistanceRadiusKm: 5,
		MaxSearchTerms:   5,
		Weights:          DefaultWeights(),
	}
}

// Page is one page of listing results.
type Page struct {
	Rows       []domain.RestaurantSummary
	HasMore    bool
	NextCursor *string
}

// Engine orchestrates sort resolution, cohort lookup, query planning,
// execution and cursor chaining. It holds no per-call state.
type Engine struct {
	cfg      Config
	resolver SortResolver
	planner  *Planner
	exec     Executor
	cohorts  CohortResolver
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewEngine creates a listing engine. metrics may be nil.
func NewEngine(cfg Config, exec Executor, cohorts CohortResolver, logger zerolog.Logger, metrics *observability.Metrics) *Engine {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = DefaultConfig().DefaultPageSize
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &Engine{
		cfg:      cfg,
		resolver: NewSortResolver(cfg.ImplicitRadiusKm, cfg.DistanceRadiusKm),
		planner:  NewPlanner(cfg.Weights, cfg.MaxSearchTerms),
		exec:     exec,
		cohorts:  cohorts,
		logger:   logger.With().Str("component", "listing_engine").Logger(),
		metrics:  metrics,
	}
}

// List returns one page of restaurants for req.
func (e *Engine) List(ctx context.Context, req Request) (*Page, error) {
	start := time.Now()
	page, mode, err := e.list(ctx, req)

	if e.metrics != nil {
		outcome := "success"
		rows := 0
		switch {
		case err != nil && errors.Is(err, domain.ErrInvalidInput):
			outcome = "invalid"
		case err != nil:
			outcome = "error"
		default:
			rows = len(page.Rows)
		}
		e.metrics.RecordListing(string(mode), outcome, time.Since(start), rows)
	}
	return page, err
}

func (e *Engine) list(ctx context.Context, req Request) (*Page, SortMode, error) {
	if req.Location != nil && !req.Location.Valid() {
		return nil, req.SortMode, domain.NewValidationError("location", "lat must be within [-90, 90] and lng within [-180, 180]")
	}

	res, err := e.resolver.Resolve(req.SortMode, SortContext{
		HasLocation: req.Location != nil,
		HasSearch:   len(e.planner.SearchTerms(req.SearchText)) > 0,
		HasRegion:   strings.TrimSpace(req.Region) != "",
	})
	if err != nil {
		return nil, req.SortMode, err
	}

	var cohort domain.Cohort
	if res.Needs(ColumnRecScore) && req.RequesterID != nil {
		cohort = e.resolveCohort(ctx, *req.RequesterID)
	}

	q, err := e.planner.Plan(req, res, cohort, e.pageSize(req.Limit))
	if err != nil {
		return nil, res.Mode, err
	}
	if req.Cursor != "" && !q.CursorApplied {
		e.logger.Debug().Str("sort", string(res.Mode)).Msg("discarding unusable cursor")
		if e.metrics != nil {
			e.metrics.RecordCursorDiscarded(string(res.Mode))
		}
	}

	rows, err := e.exec.FetchListing(ctx, q)
	if err != nil {
		return nil, res.Mode, fmt.Errorf("fetch listing: %w", err)
	}

	page, err := paginate(q, rows)
	if err != nil {
		return nil, res.Mode, err
	}
	return page, res.Mode, nil
}

// resolveCohort degrades to an unresolved cohort on any failure so that
// personalization never fails a listing.
func (e *Engine) resolveCohort(ctx context.Context, userID int64) domain.Cohort {
	if e.cohorts == nil {
		return domain.Cohort{Gender: domain.GenderUnknown}
	}
	cohort, err := e.cohorts.ResolveCohort(ctx, userID)
	if err != nil {
		level := e.logger.Warn()
		if errors.Is(err, domain.ErrNotFound) {
			level = e.logger.Debug()
		}
		level.Err(err).Int64("user_id", userID).Msg("cohort unavailable, using non-personalized score")
		return domain.Cohort{Gender: domain.GenderUnknown}
	}
	return cohort
}

func (e *Engine) pageSize(limit int) int {
	switch {
	case limit <= 0:
		return e.cfg.DefaultPageSize
	case limit > e.cfg.MaxPageSize:
		return e.cfg.MaxPageSize
	default:
		return limit
	}
}

// paginate trims the over-fetched batch and derives the next cursor from the
// last retained row.
func paginate(q *Query, rows []domain.RestaurantSummary) (*Page, error) {
	page := &Page{Rows: rows}
	if len(rows) > q.PageSize {
		page.Rows = rows[:q.PageSize]
		page.HasMore = true
	}
	if page.Rows == nil {
		page.Rows = []domain.RestaurantSummary{}
	}
	if !page.HasMore {
		return page, nil
	}

	last := page.Rows[len(page.Rows)-1]
	values := make(keyset.Values, len(q.Spec))
	for _, k := range q.Spec {
		v, err := sortValue(last, k.Column.Name)
		if err != nil {
			return nil, err
		}
		values[k.Column.Name] = v
	}
	token, err := keyset.Encode(q.Spec, values)
	if err != nil {
		return nil, fmt.Errorf("encode cursor: %w", err)
	}
	page.NextCursor = &token
	return page, nil
}

func sortValue(row domain.RestaurantSummary, column string) (any, error) {
	switch column {
	case ColumnID:
		return row.ID, nil
	case ColumnRatingAvg:
		return row.RatingAvg, nil
	case ColumnReviewCount:
		return row.ReviewCount, nil
	case ColumnLikeCount:
		return row.LikeCount, nil
	case ColumnViewCount:
		return row.ViewCount, nil
	case ColumnDistanceKm:
		if row.DistanceKm == nil {
			return nil, fmt.Errorf("listing: row %d has no distance_km", row.ID)
		}
		return *row.DistanceKm, nil
	case ColumnRecScore:
		if row.RecScore == nil {
			return nil, fmt.Errorf("listing: row %d has no rec_score", row.ID)
		}
		return *row.RecScore, nil
	default:
		return nil, fmt.Errorf("listing: unknown sort column %q", column)
	}
}
