package inbound

import (
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

// HTTPEndpoint exposes the code request and verification workflow.
type HTTPEndpoint struct {
	uc      uc
	generic bool
}

// RequestCode issues a fresh verification code and sends it to the identity.
// @Summary Request verification code
// @Description Generates a single-use code, replaces any pending code for the identity and emails it.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body RequestCodeRequest true "Request payload"
// @Success 200 {object} router.successResponse{data=RequestCodeResponse} "Code sent"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Requested too recently"
// @Failure 502 {object} router.errorResponse "Delivery or store failure"
// @Failure 504 {object} router.errorResponse "Timed out"
// @Router /otp/request [post]
func (h *HTTPEndpoint) RequestCode(r *router.Request) (any, error) {
	var req RequestCodeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, entity.ErrInvalidArgument(err)
	}

	resp, err := h.uc.RequestCode(r.Context(), usecase.RequestCodeInput{
		Identity:    req.Identity,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	return RequestCodeResponse{OK: true, ExpiresInSeconds: int64(resp.ExpiresIn.Seconds())}, nil
}

// VerifyCode checks a code and consumes it on success.
// @Summary Verify code
// @Description Verifies the pending code for the identity. A correct code can be used once.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body VerifyCodeRequest true "Verify payload"
// @Success 200 {object} router.successResponse{data=VerifyCodeResponse} "Code verified"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 404 {object} router.errorResponse "No pending code"
// @Failure 409 {object} router.errorResponse "Wrong code"
// @Failure 410 {object} router.errorResponse "Code expired"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 502 {object} router.errorResponse "Store failure"
// @Failure 504 {object} router.errorResponse "Timed out"
// @Router /otp/verify [post]
func (h *HTTPEndpoint) VerifyCode(r *router.Request) (any, error) {
	var req VerifyCodeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, entity.ErrInvalidArgument(err)
	}

	resp, err := h.uc.VerifyCode(r.Context(), usecase.VerifyCodeInput{
		Identity: req.Identity,
		Code:     req.Code,
	})
	if err != nil {
		if h.generic && entity.IsEnumerable(err) {
			return nil, entity.ErrGeneric()
		}
		return nil, err
	}

	return VerifyCodeResponse{
		OK:                resp.Verified,
		VerificationToken: resp.VerificationToken,
		VerifiedAt:        resp.VerifiedAt,
	}, nil
}
