// Package otp generates short numeric one-time codes for out-of-band
// verification (email, SMS). Codes are drawn uniformly from crypto/rand and
// zero-padded, so "000042" is as likely as "904213".
package otp
