package listing

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/keyset"
)

// ScorePrecision is the number of decimals kept on rec_score.
const ScorePrecision = 6

// Weights parameterizes the recommendation score.
type Weights struct {
	// Shrinkage (M) is the review count at which a restaurant's own average
	// and the global average weigh equally.
	Shrinkage float64 `json:"shrinkage"`
	// Popularity (W_POP) scales ln(1+views) + 2*ln(1+likes).
	Popularity float64 `json:"popularity"`
	// CohortShrinkage (M_COHORT) is the shrinkage strength of cohort averages.
	CohortShrinkage float64 `json:"cohort_shrinkage"`
	// CohortRating (W_COHORT_R) scales the cohort's lift over the global average.
	CohortRating float64 `json:"cohort_rating"`
	// CohortPopularity (W_COHORT_POP) scales ln(1+cohort likes).
	CohortPopularity float64 `json:"cohort_popularity"`
}

// DefaultWeights returns the production score weights.
func DefaultWeights() Weights {
	return Weights{
		Shrinkage:        20,
		Popularity:       0.05,
		CohortShrinkage:  15,
		CohortRating:     0.15,
		CohortPopularity: 0.02,
	}
}

// Validate rejects weights that would divide by zero or invert the order.
func (w Weights) Validate() error {
	if w.Shrinkage <= 0 {
		return fmt.Errorf("shrinkage must be positive, got %g", w.Shrinkage)
	}
	if w.CohortShrinkage <= 0 {
		return fmt.Errorf("cohort shrinkage must be positive, got %g", w.CohortShrinkage)
	}
	if w.Popularity < 0 || w.CohortRating < 0 || w.CohortPopularity < 0 {
		return fmt.Errorf("score weights must not be negative")
	}
	return nil
}

// calibrationFile is the on-disk shape of a weights override.
type calibrationFile struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
}

// LoadCalibration overlays the non-zero weights of a JSON calibration file on
// base. An empty path returns base unchanged. Unreadable, malformed or invalid
// files fall back to base and report the error so callers can log it.
func LoadCalibration(path string, base Weights, logger zerolog.Logger) (Weights, error) {
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to read calibration file, using configured weights")
		return base, fmt.Errorf("read calibration file: %w", err)
	}

	var file calibrationFile
	if err := json.Unmarshal(data, &file); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to parse calibration file, using configured weights")
		return base, fmt.Errorf("parse calibration file: %w", err)
	}

	merged := mergeWeights(base, file.Weights)
	if err := merged.Validate(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("calibration file produced invalid weights, using configured weights")
		return base, fmt.Errorf("invalid calibration: %w", err)
	}

	logger.Info().
		Str("path", path).
		Str("version", file.Version).
		Float64("shrinkage", merged.Shrinkage).
		Float64("popularity", merged.Popularity).
		Float64("cohort_shrinkage", merged.CohortShrinkage).
		Float64("cohort_rating", merged.CohortRating).
		Float64("cohort_popularity", merged.CohortPopularity).
		Msg("loaded score calibration")
	return merged, nil
}

func mergeWeights(base, override Weights) Weights {
	result := base
	if override.Shrinkage != 0 {
		result.Shrinkage = override.Shrinkage
	}
	if override.Popularity != 0 {
		result.Popularity = override.Popularity
	}
	if override.CohortShrinkage != 0 {
		result.CohortShrinkage = override.CohortShrinkage
	}
	if override.CohortRating != 0 {
		result.CohortRating = override.CohortRating
	}
	if override.CohortPopularity != 0 {
		result.CohortPopularity = override.CohortPopularity
	}
	return result
}

// Bayesian shrinks avg toward globalAvg: n/(n+m)*avg + m/(n+m)*globalAvg.
func Bayesian(n int64, avg, globalAvg, m float64) float64 {
	if n < 0 {
		n = 0
	}
	total := float64(n) + m
	return float64(n)/total*avg + m/total*globalAvg
}

// Popularity is ln(1+views) + 2*ln(1+likes).
func Popularity(views, likes int64) float64 {
	return math.Log1p(float64(max(views, 0))) + 2*math.Log1p(float64(max(likes, 0)))
}

// CohortBonus returns the personalization lift for a cohort row. A nil row or
// one without reviews yields 0.
func CohortBonus(stat *domain.CohortStat, globalAvg float64, w Weights) float64 {
	if stat == nil || stat.ReviewCount <= 0 {
		return 0
	}
	cohortAvg := float64(stat.RatingSum) / float64(stat.ReviewCount) / 2
	cohortBayes := Bayesian(stat.ReviewCount, cohortAvg, globalAvg, w.CohortShrinkage)
	lift := math.Max(cohortBayes-globalAvg, 0) * w.CohortRating
	return lift + math.Log1p(float64(max(stat.LikeCount, 0)))*w.CohortPopularity
}

// RecScore computes the rounded recommendation score of one restaurant, the
// same value the rec_score column yields.
func RecScore(s domain.RestaurantStats, globalAvg float64, cohort *domain.CohortStat, w Weights) float64 {
	score := Bayesian(s.ReviewCount, s.RatingAvg, globalAvg, w.Shrinkage) +
		Popularity(s.ViewCount, s.LikeCount)*w.Popularity +
		CohortBonus(cohort, globalAvg, w)
	return keyset.Round(score, ScorePrecision)
}

// recScoreSQL renders the unrounded score over the restaurant alias r, the
// global average CTE alias g and, when personalized, the cohort alias cs.
func (w Weights) recScoreSQL(personalized bool) string {
	m := lit(w.Shrinkage)
	expr := fmt.Sprintf(
		"(r.review_count::double precision / (r.review_count + %[1]s)) * r.rating_avg"+
			" + (%[1]s / (r.review_count + %[1]s)) * g.global_avg"+
			" + %[2]s * (LN(1 + r.view_count::double precision) + 2 * LN(1 + r.like_count::double precision))",
		m, lit(w.Popularity))

	if !personalized {
		return expr
	}

	mc := lit(w.CohortShrinkage)
	bonus := fmt.Sprintf(
		"CASE WHEN cs.review_count > 0 THEN"+
			" GREATEST((cs.review_count::double precision / (cs.review_count + %[1]s))"+
			" * (cs.rating_sum::double precision / cs.review_count / 2)"+
			" + (%[1]s / (cs.review_count + %[1]s)) * g.global_avg - g.global_avg, 0) * %[2]s"+
			" + LN(1 + cs.like_count::double precision) * %[3]s"+
			" ELSE 0 END",
		mc, lit(w.CohortRating), lit(w.CohortPopularity))
	return expr + " + " + bonus
}

// lit formats a weight as a double precision SQL literal.
func lit(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return s + "::double precision"
}
