package listing

import (
	"fmt"
	"strings"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/keyset"
)

// searchableFields are matched by every free-text term.
var searchableFields = []string{
	"r.name",
	"r.category",
	"r.branch_info",
	"r.sido",
	"r.sigugun",
	"r.dongmyun",
	"r.road_address",
	"r.jibun_address",
}

// baseColumns are selected for every listing row, in scan order.
const baseColumns = "r.id, r.name, r.category, r.branch_info, r.sido, r.sigugun, r.dongmyun, r.main_image_url, " +
	"r.view_count, r.review_count, r.rating_avg, r.like_count"

// Request is a listing request after transport decoding.
type Request struct {
	SortMode    SortMode
	Region      string
	SearchText  string
	Cursor      string
	Location    *Point
	RequesterID *int64
	Limit       int
}

// Query is an immutable description of one listing fetch. SQL selects
// baseColumns followed by distance_km when IncludeDistance is set and
// rec_score when IncludeScore is set.
type Query struct {
	SQL  string
	Args []any

	Mode            SortMode
	Spec            keyset.Spec
	PageSize        int
	IncludeDistance bool
	IncludeScore    bool
	Personalized    bool
	RadiusKm        float64
	CursorApplied   bool
	// After holds the decoded cursor position; nil on a first page.
	After keyset.Values
}

// FetchLimit is the number of rows requested to detect a further page.
func (q *Query) FetchLimit() int {
	return q.PageSize + 1
}

// Planner builds listing queries. It is stateless and safe for concurrent use.
type Planner struct {
	weights        Weights
	maxSearchTerms int
}

// NewPlanner returns a planner using the given score weights.
func NewPlanner(weights Weights, maxSearchTerms int) *Planner {
	if maxSearchTerms <= 0 {
		maxSearchTerms = 5
	}
	return &Planner{weights: weights, maxSearchTerms: maxSearchTerms}
}

// SearchTerms splits free text into at most maxSearchTerms whitespace
// separated terms.
func (p *Planner) SearchTerms(text string) []string {
	terms := strings.Fields(text)
	if len(terms) > p.maxSearchTerms {
		terms = terms[:p.maxSearchTerms]
	}
	return terms
}

// queryBuilder accumulates positional arguments.
type queryBuilder struct {
	args     []any
	argIndex int
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	ph := fmt.Sprintf("$%d", b.argIndex)
	b.argIndex++
	return ph
}

// Plan builds the query for req under the resolved order. cohort is consulted
// only when the order uses rec_score; an unresolved cohort disables
// personalization.
func (p *Planner) Plan(req Request, res Resolution, cohort domain.Cohort, pageSize int) (*Query, error) {
	if res.RadiusKm > 0 && req.Location == nil {
		return nil, domain.NewValidationError("location", "radius filter requires lat and lng")
	}

	b := &queryBuilder{argIndex: 1}
	q := &Query{
		Mode:            res.Mode,
		PageSize:        pageSize,
		RadiusKm:        res.RadiusKm,
		IncludeDistance: res.Needs(ColumnDistanceKm),
		IncludeScore:    res.Needs(ColumnRecScore),
	}
	q.Personalized = q.IncludeScore && cohort.Resolved()

	// Center coordinates are bound first so the distance expression keeps
	// stable placeholders wherever it is reused.
	var distanceRaw string
	if res.RadiusKm > 0 || q.IncludeDistance {
		if req.Location == nil {
			return nil, domain.NewValidationError("location", "distance requires lat and lng")
		}
		latPh := b.bind(req.Location.Lat)
		lngPh := b.bind(req.Location.Lng)
		distanceRaw = haversineSQL(latPh, lngPh)
	}

	var cohortJoin string
	if q.Personalized {
		cohortJoin = fmt.Sprintf(
			"LEFT JOIN restaurant_cohort_stats cs ON cs.restaurant_id = r.id AND cs.age_band = %s AND cs.gender = %s",
			b.bind(*cohort.AgeBand), b.bind(string(cohort.Gender)))
	}

	columns := map[string]keyset.Column{
		ColumnID:          {Name: ColumnID, Expr: "r.id", Kind: keyset.KindInt},
		ColumnRatingAvg:   {Name: ColumnRatingAvg, Expr: "r.rating_avg", Kind: keyset.KindFloat},
		ColumnReviewCount: {Name: ColumnReviewCount, Expr: "r.review_count", Kind: keyset.KindInt},
		ColumnLikeCount:   {Name: ColumnLikeCount, Expr: "r.like_count", Kind: keyset.KindInt},
		ColumnViewCount:   {Name: ColumnViewCount, Expr: "r.view_count", Kind: keyset.KindInt},
	}
	if distanceRaw != "" {
		columns[ColumnDistanceKm] = keyset.Column{
			Name: ColumnDistanceKm,
			Expr: keyset.RoundExpr(distanceRaw, DistancePrecision),
			Kind: keyset.KindFloat,
		}
	}
	if q.IncludeScore {
		columns[ColumnRecScore] = keyset.Column{
			Name: ColumnRecScore,
			Expr: keyset.RoundExpr(p.weights.recScoreSQL(q.Personalized), ScorePrecision),
			Kind: keyset.KindFloat,
		}
	}

	spec := make(keyset.Spec, 0, len(res.Terms))
	for _, t := range res.Terms {
		col, ok := columns[t.Column]
		if !ok {
			return nil, fmt.Errorf("listing: column %q unavailable for mode %s", t.Column, res.Mode)
		}
		spec = append(spec, keyset.Key{Column: col, Desc: t.Desc})
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	q.Spec = spec

	var conditions []string
	if region := strings.TrimSpace(req.Region); region != "" {
		conditions = append(conditions, "r.sido = "+b.bind(region))
	}
	for _, term := range p.SearchTerms(req.SearchText) {
		ph := b.bind("%" + escapeLike(term) + "%")
		matches := make([]string, len(searchableFields))
		for i, f := range searchableFields {
			matches[i] = fmt.Sprintf("%s ILIKE %s", f, ph)
		}
		conditions = append(conditions, "("+strings.Join(matches, " OR ")+")")
	}
	if res.RadiusKm > 0 {
		box := NewBoundingBox(*req.Location, res.RadiusKm)
		conditions = append(conditions, "r.lat IS NOT NULL", "r.lng IS NOT NULL")
		conditions = append(conditions, fmt.Sprintf("r.lat BETWEEN %s AND %s", b.bind(box.MinLat), b.bind(box.MaxLat)))
		switch {
		case box.FullLongitude:
		case box.WrapsAntimeridian:
			conditions = append(conditions, fmt.Sprintf("(r.lng >= %s OR r.lng <= %s)", b.bind(box.MinLng), b.bind(box.MaxLng)))
		default:
			conditions = append(conditions, fmt.Sprintf("r.lng BETWEEN %s AND %s", b.bind(box.MinLng), b.bind(box.MaxLng)))
		}
		conditions = append(conditions, fmt.Sprintf("%s <= %s", distanceRaw, b.bind(res.RadiusKm)))
	}

	if values, ok := keyset.Decode(req.Cursor, spec); ok {
		pred, predArgs, next := keyset.Build(spec, values).SQL(b.argIndex)
		conditions = append(conditions, pred)
		b.args = append(b.args, predArgs...)
		b.argIndex = next
		q.CursorApplied = true
		q.After = values
	}

	var sb strings.Builder
	if q.IncludeScore {
		sb.WriteString("WITH g AS (SELECT COALESCE(AVG(rating_avg), 0)::double precision AS global_avg FROM restaurants) ")
	}
	sb.WriteString("SELECT ")
	sb.WriteString(baseColumns)
	if q.IncludeDistance {
		sb.WriteString(", " + columns[ColumnDistanceKm].Expr + " AS distance_km")
	}
	if q.IncludeScore {
		sb.WriteString(", " + columns[ColumnRecScore].Expr + " AS rec_score")
	}
	sb.WriteString(" FROM restaurants r")
	if q.IncludeScore {
		sb.WriteString(" CROSS JOIN g")
	}
	if cohortJoin != "" {
		sb.WriteString(" " + cohortJoin)
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(spec.OrderBy())
	sb.WriteString(" LIMIT ")
	sb.WriteString(b.bind(q.FetchLimit()))

	q.SQL = sb.String()
	q.Args = b.args
	return q, nil
}

// escapeLike escapes LIKE metacharacters so terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
