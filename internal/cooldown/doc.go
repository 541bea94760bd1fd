// Package cooldown tracks failed authentication attempts per key and
// applies a progressive backoff delay to repeat offenders.
//
// A key is an arbitrary correlation string, typically a username,
// certificate serial, or caller network address. Attempt records expire
// at read time; there is no background sweeper.
package cooldown
