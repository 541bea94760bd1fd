// Package tokensign exports session tokens as signed JWT assertions.
//
// A session token only has meaning inside the process (or store) that
// issued it. When a downstream service needs to trust a session without a
// round-trip to the token store, the signer turns the token into a compact
// JWS whose claims mirror the token's identity, origin, and permissions,
// and whose validity window matches the token's own lifespan. Verification
// checks the signature and the standard time claims; it does not consult
// the token store, so a revoked session remains verifiable until its
// expiry. Use short lifespans, or keep verification server-side, when that
// window matters.
package tokensign
