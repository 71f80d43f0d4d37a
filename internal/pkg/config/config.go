package config

import (
	"io"
	"time"
)

// Config is the read-only view of application settings.
//
// Getters never fail: a missing or malformed key yields the zero value, so
// callers apply their own defaults.
type Config interface {
	io.Closer

	GetBool(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetInt64(key string) int64
	GetFloat64(key string) float64

	// GetMillisecond, GetSecond and GetMinute read an integer and scale it.
	GetMillisecond(key string) time.Duration
	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration

	// GetBinary decodes a base64 value.
	GetBinary(key string) []byte

	// GetArray reads "a,b,c" and drops blank elements.
	GetArray(key string) []string

	// GetMap reads "k1:v1,k2:v2".
	GetMap(key string) map[string]string

	// IsSet reports whether key has a value in any source (file or env).
	IsSet(key string) bool
}
