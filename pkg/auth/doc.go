// Package auth establishes the authenticated caller of one inbound request.
//
// The bearer stage verifies an Authorization: Bearer credential, loads the
// identity it names and threads that identity through the request context.
// Public routes skip the stage entirely; requests without a credential pass
// through unauthenticated and are rejected later by RequireAuthenticated on
// routes that need a caller. A credential that fails verification, or whose
// subject no longer exists, is rejected with the same response so callers
// cannot probe which subjects exist.
//
// The identity is never stored anywhere but the request context: it is
// attached once, after every check succeeds, and is gone when the request
// ends.
package auth
