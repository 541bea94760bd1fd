// Package vigil is a transport-agnostic authentication and
// session-management core for backend services.
//
// The LoginManager authenticates credentials by certificate serial,
// bearer session token, or username and password, throttles repeated
// failures per identity and per origin, issues revocable session tokens
// with sliding expiration, and derives one audit record for every
// authentication decision.
//
// The package is a library: persistent user storage, audit storage, and
// the network transport are collaborator interfaces supplied by the
// embedding service. All exported types are safe for concurrent use
// after construction.
package vigil
