// Package transport provides the HTTP middleware chain that wraps every
// screenleads request, and the JSON error envelope written on failure.
//
// # Middleware
//
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), structured access logging via log/slog, duplicate-slash
// path normalisation, and per-client throttling with golang.org/x/time/rate.
// Chain composes them so that the first middleware listed is the outermost.
//
// # Errors
//
// Every failure response is an api.ErrorResponse. HTTPStatusFromError maps
// error types to status codes, and WriteAPIError writes the envelope with
// the matching status.
package transport
