// Package clock abstracts the wall clock so that expiry and cooldown
// logic can be driven by a fake time source in tests.
package clock
