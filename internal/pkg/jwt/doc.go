// Package jwt issues and checks short-lived HS512 tokens that prove an
// address was verified, for services downstream of the verification step.
package jwt
