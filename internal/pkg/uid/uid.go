// Package uid generates identifiers: string ids for correlation and tokens,
// numeric ids for records.
package uid

// StringID produces opaque string identifiers.
type StringID interface {
	Generate() string
}

// NumberID produces roughly time-ordered int64 identifiers.
type NumberID interface {
	Generate() int64
}
