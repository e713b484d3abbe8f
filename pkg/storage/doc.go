// Package storage defines the data-access contract shared by the storage
// adapters (memory, postgres): the per-request Session that carries the
// tenant restriction, the SessionPool it is acquired from, the account and
// tenant models, and sentinel errors.
//
// A Session is bound to the request context by the tenant isolation stage.
// Tenant-scoped reads (ListCompanies, ListDevices) run on that session and
// fail with ErrNoSession when none is bound, so a handler mounted outside
// the isolation stage can never read unrestricted rows by accident.
package storage
