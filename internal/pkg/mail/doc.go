// Package mail sends transactional email.
//
// Callers build a provider-neutral Message and hand it to a Mail; the SMTP
// implementation here is the only provider the service ships with.
package mail
