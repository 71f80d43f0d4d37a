package event

import "time"

const OTPVerifiedDestination string = "otp_verified"

type OTPVerifiedMessage struct {
	ChallengeID int64     `json:"challenge_id"`
	Identity    string    `json:"identity"`
	VerifiedAt  time.Time `json:"verified_at"`
}
