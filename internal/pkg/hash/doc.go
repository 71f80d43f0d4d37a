// Package hash provides keyed hashing for short secrets such as one-time codes.
//
// Only the digest is ever stored; verification recomputes it and compares in
// constant time.
package hash
