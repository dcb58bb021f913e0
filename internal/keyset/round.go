package keyset

import (
	"fmt"
	"math"
)

// Round rounds v to the given number of decimal places, half away from zero,
// matching PostgreSQL's ROUND(numeric, places).
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// RoundExpr wraps a floating point SQL expression so it yields the same
// double precision value wherever it appears. Derived sort columns must be
// built with this helper exactly once and then reused, so SELECT, ORDER BY and
// the seek predicate compare identical values.
func RoundExpr(expr string, places int) string {
	return fmt.Sprintf("ROUND((%s)::numeric, %d)::double precision", expr, places)
}
