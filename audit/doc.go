// Package audit defines the access-decision record emitted for every
// authentication outcome and the stores that persist it.
//
// The login path treats auditing as mandatory but non-fatal: a store
// failure never changes an authentication verdict. Stores that perform
// real I/O should be wrapped in a Dispatcher so the hot path never
// blocks on the audit backend.
package audit
