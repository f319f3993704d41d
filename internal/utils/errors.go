package utils

import (
	"errors"
	"net/http"
	"strings"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeTimeout         Code = "TIMEOUT"
	CodeInternal        Code = "INTERNAL"

	// session pipeline
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeMissingFields          Code = "MISSING_FIELDS"
	CodePreconditionFailed     Code = "PRECONDITION_FAILED"
	CodeRecordingProvider      Code = "RECORDING_PROVIDER_ERROR"
	CodeRecordingStop          Code = "RECORDING_STOP_ERROR"
	CodeInvalidScoringResponse Code = "INVALID_SCORING_RESPONSE"
	CodeAlreadyHandled         Code = "ALREADY_HANDLED"
)

var statusByCode = map[Code]int{
	CodeInvalidArgument:        http.StatusBadRequest,
	CodeMissingFields:          http.StatusBadRequest,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeNotFound:               http.StatusNotFound,
	CodeConflict:               http.StatusConflict,
	CodeInvalidTransition:      http.StatusConflict,
	CodePreconditionFailed:     http.StatusPreconditionFailed,
	CodeRecordingProvider:      http.StatusBadGateway,
	CodeRecordingStop:          http.StatusBadGateway,
	CodeInvalidScoringResponse: http.StatusBadGateway,
	CodeUnavailable:            http.StatusServiceUnavailable,
	CodeTimeout:                http.StatusGatewayTimeout,
	CodeAlreadyHandled:         http.StatusOK,
}

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// AppError carries a stable Code for the HTTP layer and a safe Message for
// clients. Op names the failing method, e.g. "SessionService.Transition".
type AppError struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Op, e.Message} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return string(e.Code)
	}
	return strings.Join(parts, ": ")
}

func (e *AppError) Unwrap() error { return e.Err }

func E(code Code, op, msg string, err error) error {
	return &AppError{Code: code, Op: op, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost AppError in the chain, or "".
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func IsCode(err error, code Code) bool { return err != nil && CodeOf(err) == code }

// IsAlreadyHandled reports a lost race. Callers treat it as a successful no-op.
func IsAlreadyHandled(err error) bool { return IsCode(err, CodeAlreadyHandled) }

func HTTPStatus(err error) int {
	if code := CodeOf(err); code != "" {
		if status, ok := statusByCode[code]; ok {
			return status
		}
		return http.StatusInternalServerError
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
