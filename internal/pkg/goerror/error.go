package goerror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned by repositories when a write collides with existing state.
	ErrConflict = errors.New("resource conflict")
)

// Type groups errors by who is at fault.
type Type int

const (
	TypeServer Type = iota
	TypeBusiness
	TypeValidation
)

func (t Type) String() string {
	switch t {
	case TypeValidation:
		return "ERROR_TYPE_VALIDATION"
	case TypeBusiness:
		return "ERROR_TYPE_BUSINESS"
	case TypeServer:
		return "ERROR_TYPE_SERVER"
	default:
		return "ERROR_TYPE_UNKNOWN"
	}
}

// Code drives the HTTP status chosen for an error.
type Code int

const (
	CodeInternal Code = iota
	CodeInvalidFormat
	CodeInvalidInput
	CodeNotFound
	CodeConflict
	CodeTooManyRequest
	CodeUnauthorized
	CodeForbidden
	CodeTimeout
	// CodeGone marks a resource that existed but is no longer usable.
	CodeGone
	// CodeBadGateway marks a failure of a dependency (store, mail relay, broker).
	CodeBadGateway
)

func (c Code) String() string {
	switch c {
	case CodeInvalidFormat:
		return "ERROR_CODE_INVALID_FORMAT"
	case CodeInvalidInput:
		return "ERROR_CODE_INVALID_INPUT"
	case CodeNotFound:
		return "ERROR_CODE_NOT_FOUND"
	case CodeConflict:
		return "ERROR_CODE_CONFLICT"
	case CodeTooManyRequest:
		return "ERROR_CODE_TOO_MANY_REQUESTS"
	case CodeUnauthorized:
		return "ERROR_CODE_UNAUTHORIZED"
	case CodeForbidden:
		return "ERROR_CODE_FORBIDDEN"
	case CodeTimeout:
		return "ERROR_CODE_TIMEOUT"
	case CodeGone:
		return "ERROR_CODE_GONE"
	case CodeBadGateway:
		return "ERROR_CODE_BAD_GATEWAY"
	default:
		return "ERROR_CODE_INTERNAL"
	}
}

// Error is the structured error returned by usecases.
//
// It wraps an optional cause and carries a user-facing message, a type, a code
// and an optional machine-readable kind that clients can branch on.
type Error struct {
	err     error
	msg     string
	kind    string
	errType Type
	code    Code
	fields  map[string]string
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}

	if e.msg != "" {
		return e.msg
	}

	switch e.errType {
	case TypeValidation:
		return "Validation violation"
	case TypeBusiness:
		return "Logical business not meet with requirement"
	case TypeServer:
		return "Internal error"
	}

	return "Unknown error"
}

// String is meant for logs, never for responses.
func (e *Error) String() string {
	return fmt.Sprintf(
		"Error Type: %s, Code: %s, Kind: %s, Message: %s, Underlying Error: %v",
		e.errType.String(),
		e.code.String(),
		e.kind,
		e.msg,
		e.err,
	)
}

func (e *Error) Msg() string { return e.msg }

// Kind returns the machine-readable error kind, empty when none was set.
func (e *Error) Kind() string { return e.kind }

func (e *Error) Type() Type { return e.errType }

func (e *Error) Code() Code { return e.code }

// Fields returns per-field validation messages.
func (e *Error) Fields() map[string]string { return e.fields }

func (e *Error) Unwrap() error { return e.err }

// StatusCode maps the error code to an HTTP status code.
func (e *Error) StatusCode() int {
	switch e.code {
	case CodeInvalidFormat:
		return http.StatusBadRequest
	case CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeTooManyRequest:
		return http.StatusTooManyRequests
	case CodeConflict:
		return http.StatusConflict
	case CodeGone:
		return http.StatusGone
	case CodeBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func build(err error, kind, msg string, et Type, code Code) *Error {
	return &Error{err: err, kind: kind, msg: msg, errType: et, code: code}
}

// New creates a fully specified error. Prefer the narrower constructors.
func New(err error, kind, msg string, et Type, code Code) error {
	return build(err, kind, msg, et, code)
}

// NewServer hides err behind a generic message.
func NewServer(err error) error {
	return build(err, "", "Internal server error", TypeServer, CodeInternal)
}

func NewBusiness(msg string, code Code) error {
	return build(nil, "", msg, TypeBusiness, code)
}

// NewBusinessKind is NewBusiness with a machine-readable kind attached.
func NewBusinessKind(kind, msg string, code Code) error {
	return build(nil, kind, msg, TypeBusiness, code)
}

// NewInvalidInput wraps a validator error, or builds field errors from kv pairs.
func NewInvalidInput(err error, kv ...string) error {
	if err != nil {
		return build(err, "", "Validation error", TypeValidation, CodeInvalidInput)
	}

	if len(kv)%2 != 0 {
		return build(nil, "", "Invalid request body", TypeValidation, CodeInvalidFormat)
	}

	e := build(nil, "", "Validation error", TypeValidation, CodeInvalidInput)
	e.fields = make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		e.fields[kv[i]] = kv[i+1]
	}

	return e
}

func NewInvalidFormat(msgs ...string) error {
	if len(msgs) == 0 {
		return build(nil, "", "Invalid request body", TypeValidation, CodeInvalidFormat)
	}
	return build(nil, "", msgs[0], TypeValidation, CodeInvalidFormat)
}

// WithKind returns a copy of err tagged with kind. Non-goerror values are
// wrapped as server errors first.
func WithKind(err error, kind string) error {
	if err == nil {
		return nil
	}

	var ge *Error
	if !errors.As(err, &ge) {
		return build(err, kind, "Internal server error", TypeServer, CodeInternal)
	}

	cp := *ge
	cp.kind = kind
	return &cp
}

// KindOf returns the kind attached to err, or "".
func KindOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.kind
	}
	return ""
}
