package entity

import "time"

// UnlimitedAttempts marks a record whose wrong guesses are not counted.
const UnlimitedAttempts = -1

// OTP is the pending challenge for one identity. At most one exists per
// IdentityKey; issuing a new one replaces it.
type OTP struct {
	ID                int64
	IdentityKey       string
	CodeHash          string
	DisplayName       string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
}

// IsExpired reports whether now is strictly past ExpiresAt.
func (o *OTP) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

func (o *OTP) Limited() bool {
	return o.AttemptsRemaining != UnlimitedAttempts
}

// Mutation tells a store what to do with a record after a decision callback.
type Mutation int

const (
	MutationNone Mutation = iota
	MutationUpdate
	MutationDelete
)

func (m Mutation) String() string {
	switch m {
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	default:
		return "none"
	}
}
