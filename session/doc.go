// Package session provides durable TokenStore implementations backed by
// Redis and PostgreSQL.
//
// The root package ships an in-memory store suitable for a single process.
// These stores carry the same lifecycle semantics (lookup purges, expired
// writes are dropped, delete is idempotent) across process restarts and
// between replicas. Revocation is expressed as deletion: once a token is
// removed from the backing store, every subsequent Lookup observes it as
// absent.
package session
