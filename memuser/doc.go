// Package memuser is an in-memory vigil.UserStore for tests, demos,
// and small deployments. Passwords are Argon2id-hashed on insert and
// verified on lookup; the lock flag is plain metadata, enforced by the
// login manager's cooldowns rather than by this store.
package memuser
