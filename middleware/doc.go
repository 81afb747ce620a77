// Package middleware provides composable middleware for step execution.
//
// A [Middleware] is a function that wraps a step handler. Middleware are
// composed into a chain using [Chain] and applied around every step
// attempt, including signal processing on resumption. They are applied
// right-to-left: the first middleware in the slice is the outermost
// wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs step name, attempt, duration, and outcome.
//   - [Recover] catches panics and converts them to fatal failure outcomes.
//   - [Tracing] wraps execution in an OpenTelemetry span.
//   - [Metrics] records per-step duration, attempt, and retry counters.
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
