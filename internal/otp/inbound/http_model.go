package inbound

import "time"

type RequestCodeRequest struct {
	Identity    string `json:"identity" example:"jane@example.com"`
	DisplayName string `json:"displayName" example:"Jane"`
}

type RequestCodeResponse struct {
	OK               bool  `json:"ok" example:"true"`
	ExpiresInSeconds int64 `json:"expires_in_seconds" example:"300"`
}

func (RequestCodeResponse) Message() string {
	return "verification code sent"
}

type VerifyCodeRequest struct {
	Identity string `json:"identity" example:"jane@example.com"`
	Code     string `json:"code" example:"042917"`
}

type VerifyCodeResponse struct {
	OK                bool      `json:"ok" example:"true"`
	VerificationToken string    `json:"verification_token,omitempty"`
	VerifiedAt        time.Time `json:"verified_at"`
}

func (VerifyCodeResponse) Message() string {
	return "code verified"
}
