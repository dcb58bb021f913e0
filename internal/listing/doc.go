// Package listing implements the restaurant listing ranking and pagination
// engine.
//
// A listing request flows through four pure stages before a single fetch:
//
//   - SortResolver picks the order and the candidate radius from the
//     requested mode and the request context.
//   - The requester's cohort is resolved when the recommended order is active.
//   - Planner composes the region and free-text filters, the bounding box and
//     haversine radius filter, the derived distance_km and rec_score columns
//     and the keyset predicate into an immutable Query.
//   - Engine executes the Query through an Executor with limit page+1, trims
//     the batch and encodes the next cursor.
//
// Derived columns are rounded with keyset.RoundExpr and the same expression
// text is used in the SELECT list, the ORDER BY clause and the seek predicate.
package listing
