package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type uc interface {
	RequestCode(ctx context.Context, in usecase.RequestCodeInput) (*usecase.RequestCodeOutput, error)
	VerifyCode(ctx context.Context, in usecase.VerifyCodeInput) (*usecase.VerifyCodeOutput, error)
}

type HTTPConfig struct {
	// GenericErrors hides whether a code was missing, expired or wrong.
	GenericErrors bool
}

func RegisterHTTPEndpoint(r *router.Router, uc uc, cfg HTTPConfig) {
	end := &HTTPEndpoint{uc: uc, generic: cfg.GenericErrors}

	r.POST("/otp/request", end.RequestCode)
	r.POST("/otp/verify", end.VerifyCode)
}
