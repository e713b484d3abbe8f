// Package api defines the wire types of the screenleads HTTP surface.
//
// It holds the JSON error envelope shared by every failure response, and
// the request and response bodies of the authentication endpoints and the
// tenant-scoped listings. The package performs no I/O.
//
// Core types:
//   - [APIError]: Structured error with type, code, param, and message
//   - [ErrorResponse]: Top-level {"error": {...}} envelope
//   - [LoginRequest], [RegisterRequest], [TokenResponse]: Authentication bodies
//   - [UserResponse]: The current caller as seen by GET /auth/me
package api
