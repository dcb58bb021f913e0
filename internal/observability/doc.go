// Package observability provides logging, metrics and request context
// support for the listing service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Enrich it with request scoped ids:
//
//	logger = observability.WithRequestContext(ctx, logger)
//	logger.Info().Str("sort", "rating").Msg("listing served")
//
// # Metrics
//
// NewMetrics registers every collector with the default registry under the
// given namespace. Record* helpers keep label usage consistent:
//
//	m := observability.NewMetrics("listing_service")
//	m.RecordListing("default", "success", elapsed, len(rows))
//	m.RecordCounterMutation("toggle_like", "success", elapsed)
//
// Because registration is global, NewMetrics must be called once per process
// (tests use distinct namespaces).
package observability
