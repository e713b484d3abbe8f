// Package tenant confines every request to the data of the caller's
// company.
//
// The Resolver maps the caller of a request to a Scope: unrestricted for
// administrators and global API keys, one company for everyone else, and
// no access at all when no company can be established. The isolation
// middleware acquires one data-access session per request, activates the
// restriction for the resolved scope on it, runs the handler and then
// deactivates and releases the session on every exit path, including
// panics and client cancellation.
package tenant
