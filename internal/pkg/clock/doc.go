// Package clock provides a tiny time abstraction.
//
// Code that compares against "now" (expiry checks, cooldown windows, token
// issuance) takes a Clocker so tests can pin time with Manual.
package clock
