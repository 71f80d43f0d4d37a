package entity

import (
	"errors"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// Kinds returned to clients in the error envelope.
const (
	KindInvalidArgument  = "InvalidArgument"
	KindNotFound         = "NotFound"
	KindExpired          = "Expired"
	KindInvalidCode      = "InvalidCode"
	KindRateLimited      = "RateLimited"
	KindDeliveryFailed   = "DeliveryFailed"
	KindStoreUnavailable = "StoreUnavailable"
	KindTimeout          = "Timeout"
)

// MessageGeneric replaces NotFound, Expired and InvalidCode messages when
// enumeration hardening is on.
const MessageGeneric = "code invalid or expired"

// ErrInvalidArgument tags err as InvalidArgument. Errors that are already
// classified (a malformed body, say) keep their status and message.
func ErrInvalidArgument(err error) error {
	var ge *goerror.Error
	if errors.As(err, &ge) {
		return goerror.WithKind(err, KindInvalidArgument)
	}
	return goerror.WithKind(goerror.NewInvalidInput(err), KindInvalidArgument)
}

func ErrInvalidField(field, msg string) error {
	return goerror.WithKind(goerror.NewInvalidInput(nil, field, msg), KindInvalidArgument)
}

func ErrNotFound() error {
	return goerror.NewBusinessKind(KindNotFound, "no pending verification code", goerror.CodeNotFound)
}

func ErrExpired() error {
	return goerror.NewBusinessKind(KindExpired, "verification code expired", goerror.CodeGone)
}

func ErrInvalidCode() error {
	return goerror.NewBusinessKind(KindInvalidCode, "verification code invalid", goerror.CodeConflict)
}

func ErrGeneric() error {
	return goerror.NewBusinessKind(KindInvalidCode, MessageGeneric, goerror.CodeConflict)
}

func ErrRateLimited() error {
	return goerror.NewBusinessKind(KindRateLimited, "verification code recently sent, try again later", goerror.CodeTooManyRequest)
}

func ErrDeliveryFailed(err error) error {
	return goerror.New(err, KindDeliveryFailed, "failed to deliver verification code", goerror.TypeServer, goerror.CodeBadGateway)
}

func ErrStoreUnavailable(err error) error {
	return goerror.New(err, KindStoreUnavailable, "verification service unavailable", goerror.TypeServer, goerror.CodeBadGateway)
}

func ErrTimeout(err error) error {
	return goerror.New(err, KindTimeout, "verification service timed out", goerror.TypeServer, goerror.CodeTimeout)
}

// IsEnumerable reports whether err reveals whether an identity has a pending code.
func IsEnumerable(err error) bool {
	switch goerror.KindOf(err) {
	case KindNotFound, KindExpired, KindInvalidCode:
		return true
	}
	return false
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind string) bool {
	var ge *goerror.Error
	return errors.As(err, &ge) && ge.Kind() == kind
}
